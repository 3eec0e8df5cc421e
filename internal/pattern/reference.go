package pattern

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"contextanalyzer/internal/cache"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/learning"
	"contextanalyzer/internal/metrics"
)

// Reference data source names, as they appear in the reasoning trace.
const (
	DataRegions              = "azure_regions"
	DataServices             = "azure_services"
	DataRegionalAvailability = "regional_availability"
	DataRetirements          = "retirements"
	DataCorrections          = "corrections"
	DataGlossary             = "glossary"
)

var staticRegions = []Region{
	{"eastus", "East US"}, {"eastus2", "East US 2"}, {"centralus", "Central US"},
	{"northcentralus", "North Central US"}, {"southcentralus", "South Central US"},
	{"westcentralus", "West Central US"}, {"westus", "West US"}, {"westus2", "West US 2"},
	{"westus3", "West US 3"}, {"canadacentral", "Canada Central"}, {"canadaeast", "Canada East"},
	{"brazilsouth", "Brazil South"}, {"northeurope", "North Europe"}, {"westeurope", "West Europe"},
	{"uksouth", "UK South"}, {"ukwest", "UK West"}, {"francecentral", "France Central"},
	{"germanywestcentral", "Germany West Central"}, {"switzerlandnorth", "Switzerland North"},
	{"norwayeast", "Norway East"}, {"swedencentral", "Sweden Central"}, {"italynorth", "Italy North"},
	{"polandcentral", "Poland Central"}, {"uaenorth", "UAE North"}, {"southafricanorth", "South Africa North"},
	{"centralindia", "Central India"}, {"southindia", "South India"}, {"japaneast", "Japan East"},
	{"japanwest", "Japan West"}, {"koreacentral", "Korea Central"}, {"eastasia", "East Asia"},
	{"southeastasia", "Southeast Asia"}, {"australiaeast", "Australia East"},
	{"australiasoutheast", "Australia Southeast"}, {"usgovvirginia", "US Gov Virginia"},
	{"usgovarizona", "US Gov Arizona"}, {"usgovtexas", "US Gov Texas"}, {"usdodeast", "US DoD East"},
	{"usdodcentral", "US DoD Central"},
}

var staticServices = []string{
	"Virtual Machines", "Kubernetes Service", "App Service", "Functions", "Logic Apps",
	"SQL Database", "SQL Managed Instance", "Cosmos DB", "Blob Storage", "Storage Account",
	"Data Factory", "Synapse Analytics", "Databricks", "Event Hubs", "Service Bus", "Event Grid",
	"API Management", "Front Door", "Application Gateway", "Load Balancer", "Firewall",
	"ExpressRoute", "VPN Gateway", "Virtual Network", "Private Link", "DNS", "Key Vault",
	"Monitor", "Log Analytics", "Application Insights", "Backup", "Site Recovery",
	"OpenAI", "AI Search", "Machine Learning", "Cognitive Services", "AI Foundry",
	"Container Apps", "Container Registry", "Batch", "Arc", "Policy", "Bastion",
	"Redis Cache", "Database for PostgreSQL", "Database for MySQL", "Stream Analytics",
}

var staticFrameworks = []string{
	"FedRAMP", "HIPAA", "GDPR", "ISO 27001", "SOC 2", "PCI DSS", "CMMC", "ITAR",
	"NIST 800-53", "NIST 800-171", "GCC High", "GCCH", "IL4", "IL5", "IL6", "CJIS", "StateRAMP",
}

type ReferenceConfig struct {
	RetirementsPath string
	CorrectionsPath string
	EnableLiveData  bool
	Live            LiveSource
	Cache           *cache.Manager
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// ReferenceData holds the lookup tables the analyzer matches against.
// Regions and services come from the live source when enabled, with
// fallback to cache, then expired cache, then the static tables above.
type ReferenceData struct {
	live       LiveSource
	cache      *cache.Manager
	enableLive bool
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu          sync.RWMutex
	regions     []Region
	services    []string
	frameworks  []string
	retirements []domain.Retirement
	corrections []domain.Correction
	status      map[string]domain.DataSourceUse
}

// LoadReferenceData reads the retirements and corrections files and
// resolves regions and services.
func LoadReferenceData(ctx context.Context, cfg ReferenceConfig) (*ReferenceData, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := &ReferenceData{
		live:       cfg.Live,
		cache:      cfg.Cache,
		enableLive: cfg.EnableLiveData && cfg.Live != nil && cfg.Cache != nil,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		frameworks: staticFrameworks,
		status:     make(map[string]domain.DataSourceUse),
	}

	retirements, err := LoadRetirements(cfg.RetirementsPath)
	if err != nil {
		return nil, err
	}
	r.retirements = retirements
	r.setStatus(DataRetirements, domain.SourceConsulted, fmt.Sprintf("%d retirements", len(retirements)))

	corrections, err := learning.LoadCorrections(cfg.CorrectionsPath)
	if err != nil {
		return nil, err
	}
	r.corrections = corrections
	r.setStatus(DataCorrections, domain.SourceConsulted, fmt.Sprintf("%d corrections", len(corrections)))

	r.resolveLive(ctx)
	return r, nil
}

// StaticReferenceData is the offline table set with no files.
func StaticReferenceData() *ReferenceData {
	r := &ReferenceData{
		logger:     zap.NewNop(),
		regions:    staticRegions,
		services:   staticServices,
		frameworks: staticFrameworks,
		status:     make(map[string]domain.DataSourceUse),
	}
	r.setStatus(DataRegions, domain.SourceSkipped, "live data disabled, static table")
	r.setStatus(DataServices, domain.SourceSkipped, "live data disabled, static table")
	return r
}

func (r *ReferenceData) setStatus(name, status, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[name] = domain.DataSourceUse{Name: name, Status: status, Detail: detail}
}

func (r *ReferenceData) resolveLive(ctx context.Context) {
	regions, regStatus, regDetail := fetchWithFallback(ctx, r, DataRegions, staticRegions, r.liveRegions)
	services, svcStatus, svcDetail := fetchWithFallback(ctx, r, DataServices, staticServices, r.liveServices)

	r.mu.Lock()
	r.regions = regions
	r.services = mergeServices(services)
	r.mu.Unlock()
	r.setStatus(DataRegions, regStatus, regDetail)
	r.setStatus(DataServices, svcStatus, svcDetail)
}

func (r *ReferenceData) liveRegions(ctx context.Context) ([]Region, error) {
	return r.live.Regions(ctx)
}

func (r *ReferenceData) liveServices(ctx context.Context) ([]string, error) {
	return r.live.Services(ctx)
}

// fetchWithFallback is the three-tier lookup: live or valid cache, then
// expired cache, then the static table.
func fetchWithFallback[T any](ctx context.Context, r *ReferenceData, name string, static T, fetch func(context.Context) (T, error)) (T, string, string) {
	if !r.enableLive {
		return static, domain.SourceSkipped, "live data disabled, static table"
	}
	v, src, err := cache.GetOrComputeWithAPIFirst(r.cache, "reference:"+name, func() (T, error) {
		return fetch(ctx)
	})
	if err != nil {
		r.logger.Warn("live reference lookup failed, using static table", zap.String("source", name), zap.Error(err))
		r.metrics.ReferenceLookup(name, "static")
		return static, domain.SourceFallback, "static table: " + err.Error()
	}
	r.metrics.ReferenceLookup(name, string(src))
	switch src {
	case cache.SourceCacheExpired:
		r.logger.Warn("serving stale reference data", zap.String("source", name))
		return v, domain.SourceStale, "expired cache"
	case cache.SourceCache:
		return v, domain.SourceConsulted, "cache"
	default:
		return v, domain.SourceConsulted, "live"
	}
}

// mergeServices keeps the static display names and adds live provider
// namespaces as "Microsoft.X" names are too coarse to match on alone.
func mergeServices(live []string) []string {
	seen := make(map[string]bool, len(staticServices))
	out := make([]string, 0, len(staticServices)+len(live))
	for _, s := range staticServices {
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	for _, ns := range live {
		name := strings.TrimPrefix(ns, "Microsoft.")
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	return out
}

// Refresh bypasses any fresh cache and asks the live source again. Failures
// keep the current tables.
func (r *ReferenceData) Refresh(ctx context.Context) error {
	if !r.enableLive {
		return nil
	}
	var errs []string
	if regions, err := r.live.Regions(ctx); err != nil {
		errs = append(errs, err.Error())
	} else {
		if err := r.cache.Set("reference:"+DataRegions, regions); err != nil {
			r.logger.Warn("cache set failed", zap.Error(err))
		}
		r.mu.Lock()
		r.regions = regions
		r.mu.Unlock()
		r.setStatus(DataRegions, domain.SourceConsulted, "live")
	}
	if services, err := r.live.Services(ctx); err != nil {
		errs = append(errs, err.Error())
	} else {
		if err := r.cache.Set("reference:"+DataServices, services); err != nil {
			r.logger.Warn("cache set failed", zap.Error(err))
		}
		r.mu.Lock()
		r.services = mergeServices(services)
		r.mu.Unlock()
		r.setStatus(DataServices, domain.SourceConsulted, "live")
	}
	if len(errs) > 0 {
		return fmt.Errorf("refresh reference data: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RegionalAvailability returns the SKUs offered in region through the same
// fallback chain. Offline it reports skipped and returns nothing.
func (r *ReferenceData) RegionalAvailability(ctx context.Context, region string) ([]string, domain.DataSourceUse) {
	name := DataRegionalAvailability
	skus, status, detail := fetchWithFallback(ctx, r, name+":"+region, []string(nil), func(ctx context.Context) ([]string, error) {
		return r.live.RegionalAvailability(ctx, region)
	})
	if status == domain.SourceConsulted || status == domain.SourceStale {
		detail = fmt.Sprintf("%s: %d SKUs in %s", detail, len(skus), region)
	}
	return skus, domain.DataSourceUse{Name: name, Status: status, Detail: detail}
}

func (r *ReferenceData) LiveEnabled() bool { return r.enableLive }

func (r *ReferenceData) Regions() []Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regions
}

func (r *ReferenceData) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services
}

func (r *ReferenceData) Frameworks() []string { return r.frameworks }

func (r *ReferenceData) Retirements() []domain.Retirement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retirements
}

func (r *ReferenceData) Corrections() []domain.Correction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.corrections
}

// AddCorrection makes a newly recorded correction visible to later analyses.
func (r *ReferenceData) AddCorrection(c domain.Correction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corrections = append(r.corrections, c)
}

// Sources returns the load status of each data source in a fixed order.
func (r *ReferenceData) Sources() []domain.DataSourceUse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.DataSourceUse
	for _, name := range []string{DataRegions, DataServices, DataRetirements, DataCorrections} {
		if s, ok := r.status[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

type retirementRecord struct {
	ServiceName     string   `json:"service_name"`
	RetiringFeature string   `json:"retiring_feature"`
	RetirementDate  string   `json:"retirement_date"`
	KeyTerms        []string `json:"key_terms"`
	Criticality     string   `json:"criticality"`
}

// LoadRetirements reads {"retirements": [...]}. Dates may be RFC 3339 or a
// bare YYYY-MM-DD. A missing file yields no retirements.
func LoadRetirements(path string) ([]domain.Retirement, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read retirements: %w", err)
	}
	var f struct {
		Retirements []retirementRecord `json:"retirements"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse retirements %s: %w", path, err)
	}

	out := make([]domain.Retirement, 0, len(f.Retirements))
	for _, rec := range f.Retirements {
		ret := domain.Retirement{
			ServiceName:     rec.ServiceName,
			RetiringFeature: rec.RetiringFeature,
			KeyTerms:        rec.KeyTerms,
			Criticality:     rec.Criticality,
		}
		if rec.RetirementDate != "" {
			t, err := parseDate(rec.RetirementDate)
			if err != nil {
				return nil, fmt.Errorf("retirement %q: %w", rec.ServiceName, err)
			}
			ret.RetirementDate = t
		}
		out = append(out, ret)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
