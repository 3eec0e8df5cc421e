package domain

import "strings"

type Category string

const (
	CategoryComplianceRegulatory    Category = "compliance_regulatory"
	CategorySecurityGovernance      Category = "security_governance"
	CategoryDataSovereignty         Category = "data_sovereignty"
	CategoryProductRoadmap          Category = "product_roadmap"
	CategoryTechnicalSupport        Category = "technical_support"
	CategoryFeatureRequest          Category = "feature_request"
	CategoryMigrationModernization  Category = "migration_modernization"
	CategoryIntegrationConnectivity Category = "integration_connectivity"
	CategoryPerformanceScalability  Category = "performance_scalability"
	CategoryCostBilling             Category = "cost_billing"
	CategoryTrainingDocumentation   Category = "training_documentation"
	CategoryServiceRetirement       Category = "service_retirement"
	CategoryServiceAvailability     Category = "service_availability"
	CategoryCapacity                Category = "capacity"
	CategoryAOAICapacity            Category = "aoai_capacity"
	CategorySupportEscalation       Category = "support_escalation"
	CategoryBusinessDesk            Category = "business_desk"
	CategorySeekingGuidance         Category = "seeking_guidance"
	CategoryIdentityAccess          Category = "identity_access"
	CategoryLicensing               Category = "licensing"
)

// Categories lists every category in declaration order. Scoring and prompt
// rendering iterate this slice so their output is stable.
var Categories = []Category{
	CategoryComplianceRegulatory,
	CategorySecurityGovernance,
	CategoryDataSovereignty,
	CategoryProductRoadmap,
	CategoryTechnicalSupport,
	CategoryFeatureRequest,
	CategoryMigrationModernization,
	CategoryIntegrationConnectivity,
	CategoryPerformanceScalability,
	CategoryCostBilling,
	CategoryTrainingDocumentation,
	CategoryServiceRetirement,
	CategoryServiceAvailability,
	CategoryCapacity,
	CategoryAOAICapacity,
	CategorySupportEscalation,
	CategoryBusinessDesk,
	CategorySeekingGuidance,
	CategoryIdentityAccess,
	CategoryLicensing,
}

var categoryLabels = map[Category]string{
	CategoryComplianceRegulatory:    "Compliance & Regulatory",
	CategorySecurityGovernance:      "Security & Governance",
	CategoryDataSovereignty:         "Data Sovereignty",
	CategoryProductRoadmap:          "Product Roadmap",
	CategoryTechnicalSupport:        "Technical Support",
	CategoryFeatureRequest:          "Feature Request",
	CategoryMigrationModernization:  "Migration & Modernization",
	CategoryIntegrationConnectivity: "Integration & Connectivity",
	CategoryPerformanceScalability:  "Performance & Scalability",
	CategoryCostBilling:             "Cost & Billing",
	CategoryTrainingDocumentation:   "Training & Documentation",
	CategoryServiceRetirement:       "Service Retirement",
	CategoryServiceAvailability:     "Service Availability",
	CategoryCapacity:                "Capacity",
	CategoryAOAICapacity:            "Azure OpenAI Capacity",
	CategorySupportEscalation:       "Support Escalation",
	CategoryBusinessDesk:            "Business Desk",
	CategorySeekingGuidance:         "Seeking Guidance",
	CategoryIdentityAccess:          "Identity & Access",
	CategoryLicensing:               "Licensing",
}

func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory accepts the enum value in any case, with spaces or dashes in
// place of underscores.
func ParseCategory(s string) (Category, bool) {
	c := Category(normalizeEnum(s))
	return c, c.Valid()
}

type Intent string

const (
	IntentSeekingInformation  Intent = "seeking_information"
	IntentRequestingFeature   Intent = "requesting_feature"
	IntentReportingIssue      Intent = "reporting_issue"
	IntentSeekingGuidance     Intent = "seeking_guidance"
	IntentComplianceSupport   Intent = "compliance_support"
	IntentMigrationAssistance Intent = "migration_assistance"
	IntentTroubleshooting     Intent = "troubleshooting"
	IntentConfigurationHelp   Intent = "configuration_help"
	IntentBestPractices       Intent = "best_practices"
	IntentRoadmapInquiry      Intent = "roadmap_inquiry"
	IntentCapacityRequest     Intent = "capacity_request"
	IntentEscalationRequest   Intent = "escalation_request"
	IntentSovereigntyConcern  Intent = "sovereignty_concern"
	IntentBusinessEngagement  Intent = "business_engagement"
	IntentCostOptimization    Intent = "cost_optimization"
)

var Intents = []Intent{
	IntentSeekingInformation,
	IntentRequestingFeature,
	IntentReportingIssue,
	IntentSeekingGuidance,
	IntentComplianceSupport,
	IntentMigrationAssistance,
	IntentTroubleshooting,
	IntentConfigurationHelp,
	IntentBestPractices,
	IntentRoadmapInquiry,
	IntentCapacityRequest,
	IntentEscalationRequest,
	IntentSovereigntyConcern,
	IntentBusinessEngagement,
	IntentCostOptimization,
}

var intentSet = func() map[Intent]bool {
	m := make(map[Intent]bool, len(Intents))
	for _, i := range Intents {
		m[i] = true
	}
	return m
}()

func (i Intent) Valid() bool {
	return intentSet[i]
}

func ParseIntent(s string) (Intent, bool) {
	i := Intent(normalizeEnum(s))
	return i, i.Valid()
}

type BusinessImpact string

const (
	ImpactCritical BusinessImpact = "critical"
	ImpactHigh     BusinessImpact = "high"
	ImpactMedium   BusinessImpact = "medium"
	ImpactLow      BusinessImpact = "low"
)

var BusinessImpacts = []BusinessImpact{ImpactCritical, ImpactHigh, ImpactMedium, ImpactLow}

func (b BusinessImpact) Valid() bool {
	switch b {
	case ImpactCritical, ImpactHigh, ImpactMedium, ImpactLow:
		return true
	}
	return false
}

// Rank orders impacts so callers can take the more severe of two values.
func (b BusinessImpact) Rank() int {
	switch b {
	case ImpactCritical:
		return 4
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	}
	return 0
}

func ParseBusinessImpact(s string) (BusinessImpact, bool) {
	b := BusinessImpact(normalizeEnum(s))
	return b, b.Valid()
}

// Level is used for technical complexity and urgency.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
