package model

// Plan constants.
const (
	PlanFree = "free"
	PlanPaid = "paid"
)

// DefaultPlan is assigned at registration when no plan is given.
const DefaultPlan = PlanFree

// PlanConfig defines the usage allowances of a plan.
type PlanConfig struct {
	// WindowLimit is the number of calls allowed in the rolling usage window.
	WindowLimit int64
	// RequestsPerMinute and Burst drive the short-term token bucket.
	RequestsPerMinute int
	Burst             int
}

// PlanConfigs maps plan names to their allowances.
// Add a row here to introduce a plan.
var PlanConfigs = map[string]PlanConfig{
	PlanFree: {WindowLimit: 100, RequestsPerMinute: 30, Burst: 10},
	PlanPaid: {WindowLimit: 1000, RequestsPerMinute: 300, Burst: 50},
}

// FallbackPlanConfig applies to plans without a row in PlanConfigs.
var FallbackPlanConfig = PlanConfigs[PlanPaid]

// GetPlanConfig returns the allowances for a plan.
func GetPlanConfig(plan string) PlanConfig {
	if cfg, ok := PlanConfigs[plan]; ok {
		return cfg
	}
	return FallbackPlanConfig
}

// IsKnownPlan reports whether the plan has a row in PlanConfigs.
func IsKnownPlan(plan string) bool {
	_, ok := PlanConfigs[plan]
	return ok
}
