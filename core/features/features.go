// Package features resolves which product modules an organization can use,
// from its subscription plan plus per-org overrides.
package features

import "simplicity-itsm/core/store"

type Feature string

const (
	IncidentManagement Feature = "incidentManagement"
	ProblemManagement  Feature = "problemManagement"
	ChangeManagement   Feature = "changeManagement"
	RequestFulfillment Feature = "requestFulfillment"
	ServiceCatalog     Feature = "serviceCatalog"
	KnowledgeBase      Feature = "knowledgeBase"
	AssetManagement    Feature = "assetManagement"
	SLAManagement      Feature = "slaManagement"
)

// AllFeatures lists every feature in stable order.
var AllFeatures = []Feature{
	IncidentManagement,
	ProblemManagement,
	ChangeManagement,
	RequestFulfillment,
	ServiceCatalog,
	KnowledgeBase,
	AssetManagement,
	SLAManagement,
}

// PlanFeatures maps each plan to its base feature set.
var PlanFeatures = map[string][]Feature{
	"free": {IncidentManagement},
	"pro": {
		IncidentManagement,
		ProblemManagement,
		RequestFulfillment,
		KnowledgeBase,
		SLAManagement,
	},
	"enterprise": AllFeatures,
}

var planOrder = map[string]int{"free": 0, "pro": 1, "enterprise": 2}

// HasFeature reports whether the org can use the feature. An override set to
// true grants a feature outside the plan; an override set to false is
// ignored, so a plan feature can never be switched off below the plan.
func HasFeature(org *store.Organization, f Feature) bool {
	if org == nil {
		return false
	}
	if planHasFeature(org.Plan, f) {
		return true
	}
	return org.FeatureOverrides[string(f)]
}

// AvailableFeatures returns every feature the org can use, in AllFeatures
// order.
func AvailableFeatures(org *store.Organization) []Feature {
	var out []Feature
	for _, f := range AllFeatures {
		if HasFeature(org, f) {
			out = append(out, f)
		}
	}
	return out
}

// CanUpgradeFeature reports whether some higher plan would add the feature,
// which tells the UI to show an upsell rather than hide the module. Only the
// plan list counts here: a feature granted through an override is still
// upgradable, since the grant can be withdrawn while a plan cannot.
func CanUpgradeFeature(org *store.Organization, f Feature) bool {
	if org == nil || planHasFeature(org.Plan, f) {
		return false
	}
	current := planOrder[org.Plan]
	for plan, order := range planOrder {
		if order > current && planHasFeature(plan, f) {
			return true
		}
	}
	return false
}

// PlanFeatureMap materializes the plan's features as a full boolean map over
// AllFeatures. Billing writes this as the override set on every subscription
// change, resetting any one-off grants.
func PlanFeatureMap(plan string) map[string]bool {
	out := make(map[string]bool, len(AllFeatures))
	for _, f := range AllFeatures {
		out[string(f)] = planHasFeature(plan, f)
	}
	return out
}

func planHasFeature(plan string, f Feature) bool {
	for _, pf := range PlanFeatures[plan] {
		if pf == f {
			return true
		}
	}
	return false
}

// ValidPlan reports whether the plan name is one we sell.
func ValidPlan(plan string) bool {
	_, ok := planOrder[plan]
	return ok
}
