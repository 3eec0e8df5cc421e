package pattern

import (
	"regexp"

	"contextanalyzer/internal/domain"
)

// Rule is one weighted phrase. A matching rule adds its weight once to the
// score of its category or intent, however often the phrase occurs.
type Rule struct {
	Pattern  *regexp.Regexp
	Category domain.Category
	Intent   domain.Intent
	Weight   float64
}

type phrase struct {
	pattern string
	weight  float64
}

func compile(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`)
}

func categoryRules(c domain.Category, phrases ...phrase) []Rule {
	out := make([]Rule, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, Rule{Pattern: compile(p.pattern), Category: c, Weight: p.weight})
	}
	return out
}

func intentRules(i domain.Intent, phrases ...phrase) []Rule {
	out := make([]Rule, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, Rule{Pattern: compile(p.pattern), Intent: i, Weight: p.weight})
	}
	return out
}

// Thresholds for the override rules.
const (
	capacityEarlyExit      = 0.9
	categoryFloor          = 0.3
	intentFloor            = 0.3
	floorConfidence        = 0.5
	strongFeatureThreshold = 0.6
	capacityRequestMin     = 0.6
	shortCircuitBonus      = 0.2
	complianceSuppression  = 0.5
	aoaiRefinementMin      = 0.8
	glossaryConfidence     = 0.99
	correctionOverrideMin  = 0.6
)

// featurePhrases is feature-request language. It feeds the feature_request
// category, the requesting_feature intent and compliance suppression.
var featurePhrases = []phrase{
	{`feature\s+request`, 0.8},
	{`need(?:s|ed)?\s+(?:\w+\s+){0,2}connectors?`, 0.7},
	{`connectors?\s+for`, 0.6},
	{`(?:add|adding)\s+support\s+(?:for|of)|please\s+add`, 0.6},
	{`(?:request(?:ing)?|want|need)\s+(?:a\s+)?(?:new\s+)?(?:feature|capability|functionality)`, 0.6},
	{`enhancement|missing\s+feature|capability\s+gap|feature\s+parity`, 0.5},
	{`would\s+like\s+(?:to\s+(?:have|see)|a)|support\s+for|not\s+(?:yet\s+)?(?:available|supported)\s+in`, 0.4},
}

var capacityPhrases = []phrase{
	{`capacity\s+needed`, 0.95},
	{`capacity\s+increase|increase\s+(?:in\s+)?capacity`, 0.9},
	{`quota\s+increase|increase\s+(?:the\s+|our\s+)?quota|quota\s+limit`, 0.8},
	{`capacity\s+constraints?|out\s+of\s+capacity|insufficient\s+capacity|capacity\s+restrictions?`, 0.8},
	{`more\s+(?:cores|vcpus?|gpus?)|sku\s+not\s+available|allocation\s+fail(?:ed|ure)`, 0.6},
	{`capacity`, 0.4},
	{`quota`, 0.4},
}

var capacityRequestPhrases = []phrase{
	{`capacity\s+needed|need(?:s)?\s+(?:more\s+)?capacity`, 0.6},
	{`capacity\s+increase|increase\s+(?:in\s+)?capacity`, 0.6},
	{`quota\s+increase|increase\s+(?:the\s+|our\s+)?quota`, 0.6},
	{`ptu|provisioned\s+throughput|more\s+(?:cores|vcpus?|gpus?)`, 0.5},
	{`request(?:ing)?\s+(?:additional\s+)?capacity`, 0.5},
}

var (
	featureRules         = intentRules(domain.IntentRequestingFeature, featurePhrases...)
	capacityRules        = categoryRules(domain.CategoryCapacity, capacityPhrases...)
	capacityRequestRules = intentRules(domain.IntentCapacityRequest, capacityRequestPhrases...)
)

// CategoryRules is the category rule table, in evaluation order. Capacity
// rules are scored separately first for the early exit.
var CategoryRules = concat(
	categoryRules(domain.CategoryComplianceRegulatory,
		phrase{`compliance|compliant`, 0.4},
		phrase{`fedramp|hipaa|gdpr|pci(?:[\s-]dss)?|iso\s*27001|soc\s*2|cmmc|itar|nist\s*800-\d+`, 0.5},
		phrase{`gcc\s*high|gcch|gcc|il[456]|dod|government\s+cloud|azure\s+government`, 0.6},
		phrase{`regulat(?:ory|ion|ions|ed)|audit(?:or|ing)?|attestation|certification`, 0.4},
	),
	categoryRules(domain.CategorySecurityGovernance,
		phrase{`security\s+(?:policy|policies|baseline|posture|review|governance)`, 0.6},
		phrase{`governance|azure\s+policy|policy\s+assignment`, 0.5},
		phrase{`vulnerabilit(?:y|ies)|threats?|malware|ransomware|zero\s+trust`, 0.5},
		phrase{`encrypt(?:ion|ed)?|customer[\s-]managed\s+keys?|cmk|private\s+endpoints?`, 0.4},
		phrase{`security`, 0.3},
	),
	categoryRules(domain.CategoryDataSovereignty,
		phrase{`data\s+(?:sovereignty|residency|localization|boundary)`, 0.9},
		phrase{`sovereign(?:ty)?\s+cloud|eu\s+data\s+boundary`, 0.8},
		phrase{`data\s+(?:must|needs?\s+to)\s+(?:stay|remain)\s+in`, 0.7},
		phrase{`cross[\s-]border|in[\s-]country`, 0.4},
	),
	categoryRules(domain.CategoryProductRoadmap,
		phrase{`roadmap`, 0.7},
		phrase{`(?:eta|timeline|release\s+date)\s+(?:for|of)`, 0.6},
		phrase{`when\s+will|planned\s+for|coming\s+soon|general\s+availability|public\s+preview|private\s+preview`, 0.5},
	),
	categoryRules(domain.CategoryTechnicalSupport,
		phrase{`errors?|exceptions?|fail(?:s|ed|ing|ure)?|crash(?:es|ed|ing)?`, 0.4},
		phrase{`not\s+working|doesn'?t\s+work|broken|unable\s+to|cannot|can'?t`, 0.4},
		phrase{`troubleshoot(?:ing)?|bugs?|issue\s+with|stopped\s+working`, 0.4},
		phrase{`support\s+(?:ticket|case)`, 0.3},
	),
	categoryRules(domain.CategoryFeatureRequest, featurePhrases...),
	categoryRules(domain.CategoryMigrationModernization,
		phrase{`migrat(?:e|ion|ions|ing)`, 0.6},
		phrase{`moderniz(?:e|ation|ing)|lift[\s-]and[\s-]shift|re[\s-]?platform|re[\s-]?host`, 0.6},
		phrase{`move\s+(?:from|to)|on[\s-]prem(?:ises)?\s+to|upgrade\s+from`, 0.4},
	),
	categoryRules(domain.CategoryIntegrationConnectivity,
		phrase{`integrat(?:e|ion|ions|ing)`, 0.4},
		phrase{`connectors?|connectivity|api\s+(?:integration|connection)`, 0.4},
		phrase{`vpn|expressroute|peering|hybrid\s+connection|private\s+link|network\s+connectivity`, 0.5},
		phrase{`webhooks?|event\s+grid|service\s+bus`, 0.3},
	),
	categoryRules(domain.CategoryPerformanceScalability,
		phrase{`performance|latency|slow(?:ness|ly)?|throughput`, 0.5},
		phrase{`scal(?:e|ing|ability)|autoscal(?:e|ing)`, 0.5},
		phrase{`timeouts?|high\s+cpu|memory\s+pressure|throttl(?:e|ed|ing)`, 0.4},
	),
	categoryRules(domain.CategoryCostBilling,
		phrase{`costs?|pricing|price`, 0.5},
		phrase{`bill(?:ing|ed)?|invoices?|charges?|refund`, 0.6},
		phrase{`reserved\s+instances?|savings\s+plan|budget|spend(?:ing)?|azure\s+credits?`, 0.5},
	),
	categoryRules(domain.CategoryTrainingDocumentation,
		phrase{`documentation|docs|learn\s+module|tutorials?`, 0.6},
		phrase{`training|workshop|enablement|how[\s-]to\s+guide`, 0.5},
		phrase{`samples?|examples?`, 0.2},
	),
	categoryRules(domain.CategoryServiceRetirement,
		phrase{`retir(?:e|ed|ing|ement)`, 0.8},
		phrase{`deprecat(?:e|ed|ion|ing)|end\s+of\s+(?:life|support)|eol`, 0.7},
		phrase{`sunset(?:ting)?|being\s+removed|shut(?:ting)?\s+down`, 0.5},
	),
	categoryRules(domain.CategoryServiceAvailability,
		phrase{`available\s+in\s+(?:the\s+)?(?:\w+\s+){0,2}regions?|regional\s+availability`, 0.8},
		phrase{`availability|outage|downtime|service\s+health`, 0.4},
		phrase{`regions?|regional`, 0.3},
	),
	categoryRules(domain.CategoryAOAICapacity,
		phrase{`ptu|provisioned\s+throughput`, 0.8},
		phrase{`(?:azure\s+openai|aoai|openai|gpt-?4o?|gpt-?35)\s+(?:capacity|quota|tpm|rate\s+limits?)`, 0.9},
		phrase{`tokens?\s+per\s+minute|tpm`, 0.6},
		phrase{`azure\s+openai|aoai`, 0.3},
	),
	categoryRules(domain.CategorySupportEscalation,
		phrase{`escalat(?:e|ed|ion|ing)`, 0.8},
		phrase{`sev(?:erity)?\s*[a1]|critical\s+situation|crit\s*sit`, 0.6},
		phrase{`executive\s+(?:attention|sponsor)|urgent\s+attention|unresolved\s+for`, 0.5},
		phrase{`support\s+case\s+(?:stuck|open\s+for)`, 0.5},
	),
	categoryRules(domain.CategoryBusinessDesk,
		phrase{`business\s+desk|account\s+team|account\s+manager|csam|partner\s+(?:program|center)`, 0.7},
		phrase{`contracts?|ea\s+renewal|enterprise\s+agreement|purchase\s+order|procurement`, 0.5},
		phrase{`engagement|meeting\s+request|introduction\s+to`, 0.3},
	),
	categoryRules(domain.CategorySeekingGuidance,
		phrase{`best\s+practices?|recommend(?:ation|ations|ed)?|guidance|advice`, 0.6},
		phrase{`how\s+(?:should|do|can)\s+(?:we|i)|what\s+is\s+the\s+best\s+way|which\s+(?:option|approach)`, 0.5},
		phrase{`architecture\s+review|design\s+review`, 0.4},
	),
	categoryRules(domain.CategoryIdentityAccess,
		phrase{`entra(?:\s+id)?|azure\s+(?:ad|active\s+directory)|active\s+directory`, 0.6},
		phrase{`rbac|role\s+assignments?|permissions?|access\s+denied|unauthori[sz]ed|forbidden`, 0.5},
		phrase{`sso|single\s+sign[\s-]on|mfa|multi[\s-]factor|conditional\s+access|identity`, 0.5},
	),
	categoryRules(domain.CategoryLicensing,
		phrase{`licen[sc](?:e|es|ing)`, 0.8},
		phrase{`e3|e5|g3|g5|add[\s-]on\s+licen[sc]es?|per[\s-]user`, 0.4},
	),
)

// IntentRules is the intent rule table, in evaluation order.
var IntentRules = concat(
	intentRules(domain.IntentSeekingInformation,
		phrase{`what\s+(?:is|are)|information\s+(?:on|about)|details\s+(?:on|about)|is\s+there|does\s+(?:azure|microsoft|it)`, 0.5},
		phrase{`questions?|wondering|curious|clarif(?:y|ication)`, 0.4},
	),
	featureRules,
	intentRules(domain.IntentReportingIssue,
		phrase{`errors?|fail(?:s|ed|ing|ure)?|broken|not\s+working`, 0.5},
		phrase{`outage|is\s+down|went\s+down`, 0.5},
		phrase{`bugs?|issue\s+with|problem\s+with|incident`, 0.5},
	),
	intentRules(domain.IntentSeekingGuidance,
		phrase{`best\s+practices?|recommend(?:ation|ations|ed)?|guidance|advice|how\s+should`, 0.6},
		phrase{`what\s+is\s+the\s+best\s+way|which\s+(?:option|approach)`, 0.5},
	),
	intentRules(domain.IntentComplianceSupport,
		phrase{`compliance|compliant|audit|attestation|certification`, 0.5},
		phrase{`fedramp|hipaa|gdpr|gcc\s*high|gcch|il[456]|cmmc|itar`, 0.5},
	),
	intentRules(domain.IntentMigrationAssistance,
		phrase{`migrat(?:e|ion|ions|ing)|lift[\s-]and[\s-]shift|moderniz(?:e|ation)`, 0.7},
		phrase{`move\s+(?:from|to)|cutover`, 0.4},
	),
	intentRules(domain.IntentTroubleshooting,
		phrase{`troubleshoot(?:ing)?|debug(?:ging)?|diagnos(?:e|is|ing)|root\s+cause|investigat(?:e|ing|ion)`, 0.7},
		phrase{`unable\s+to|cannot|can'?t|keeps?\s+failing`, 0.4},
	),
	intentRules(domain.IntentConfigurationHelp,
		phrase{`configur(?:e|ation|ing)|set\s*up|enable|settings?`, 0.5},
		phrase{`how\s+(?:do|can)\s+(?:i|we)\s+(?:configure|enable|set)`, 0.5},
	),
	intentRules(domain.IntentBestPractices,
		phrase{`best\s+practices?|well[\s-]architected|reference\s+architecture|recommended\s+approach`, 0.8},
	),
	intentRules(domain.IntentRoadmapInquiry,
		phrase{`roadmap|eta|timeline|when\s+will|release\s+date|general\s+availability|planned`, 0.7},
	),
	capacityRequestRules,
	intentRules(domain.IntentEscalationRequest,
		phrase{`escalat(?:e|ed|ion|ing)`, 0.8},
		phrase{`urgent\s+attention|executive\s+(?:attention|sponsor)|need\s+help\s+asap`, 0.5},
	),
	intentRules(domain.IntentSovereigntyConcern,
		phrase{`data\s+(?:sovereignty|residency|localization|boundary)|sovereign`, 0.8},
		phrase{`data\s+(?:must|needs?\s+to)\s+(?:stay|remain)\s+in|cross[\s-]border`, 0.6},
	),
	intentRules(domain.IntentBusinessEngagement,
		phrase{`business\s+desk|account\s+team|account\s+manager|partners?|contracts?|engagement|meeting`, 0.5},
	),
	intentRules(domain.IntentCostOptimization,
		phrase{`cost\s+(?:optimi[sz]ation|reduction|savings?)|reduce\s+(?:our\s+)?(?:costs?|spend)|save\s+money|savings\s+plan|reserved\s+instances?`, 0.8},
		phrase{`costs?|pricing|billing`, 0.3},
	),
)

func concat(groups ...[]Rule) []Rule {
	var out []Rule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Keyword buckets for business impact, complexity and urgency. Earlier
// buckets win.
var (
	criticalImpact  = compile(`production\s+(?:is\s+)?down|outage|critical|sev(?:erity)?\s*[a1]|data\s+loss|security\s+breach|blocking\s+go[\s-]live|all\s+users`)
	highImpact      = compile(`urgent|blockers?|blocking|deadline|escalat(?:e|ed|ion)|revenue|customer\s+impact|high\s+priority|go[\s-]live`)
	lowImpact       = compile(`nice\s+to\s+have|low\s+priority|when\s+possible|no\s+rush|curious|just\s+wondering`)
	capacityMention = compile(`capacity|quota|ptu|provisioned\s+throughput`)

	highComplexity   = compile(`migrat(?:e|ion|ing)|multi[\s-]region|architecture|hybrid|integrat(?:e|ion)|custom|kubernetes|aks|networking|vnet|private\s+endpoints?|expressroute|disaster\s+recovery`)
	mediumComplexity = compile(`configur(?:e|ation)|set\s*up|deploy(?:ment)?|api|permissions?|policy|connectors?`)

	highUrgency   = compile(`urgent(?:ly)?|asap|immediately|critical|outage|production\s+down|blocker|blocking|today`)
	mediumUrgency = compile(`soon|this\s+week|next\s+week|deadline|by\s+end\s+of|this\s+month|priority`)
)
