package patterns

import "github.com/shipsight/shipsight/pkg/models"

func boolp(b bool) *bool { return &b }

// Builtin returns the built-in pattern library covering the known
// root-cause categories. Deployments can replace it with a YAML library
// via LoadLibrary.
func Builtin() *Library {
	lib, err := NewLibrary(builtinPatterns())
	if err != nil {
		// The builtin set is fixed at compile time; a construction error
		// here is a programming bug.
		panic(err)
	}
	return lib
}

func builtinPatterns() []*Pattern {
	return []*Pattern{
		{
			ID:          "network-relationship-missing",
			Category:    models.CategoryNetworkRelationshipMissing,
			Description: "No active network relationship between shipper and carrier",
			Prior:       0.30,
			Symptoms: []Predicate{
				{Source: "network-relationship", FindingContains: "no active relationship", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "network-relationship", Weight: models.WeightCritical},
				{Source: "internal-config", Weight: models.WeightSupporting},
			},
			Resolutions: []Resolution{
				{Priority: "high", Category: "network", Description: "Create or reactivate the shipper-carrier network relationship, then re-request tracking"},
			},
		},
		{
			ID:          "jt-scraping-error",
			Category:    models.CategoryJTScrapingError,
			Description: "RPA scraper failing against the carrier portal",
			Prior:       0.20,
			Symptoms: []Predicate{
				{Source: "rpa-scraper", FindingContains: "scrape failed", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "rpa-scraper", Weight: models.WeightCritical},
				{Source: "recent-logs", Weight: models.WeightSupporting},
			},
			Resolutions: []Resolution{
				{Priority: "high", Category: "scraping", Description: "Re-run the portal scraper job; if the portal layout changed, file a scraper template update"},
			},
		},
		{
			ID:          "eld-not-enabled",
			Category:    models.CategoryELDNotEnabled,
			Description: "Carrier ELD integration not enabled for this load",
			Prior:       0.20,
			Symptoms: []Predicate{
				{Source: "internal-config", FindingContains: "eld", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "internal-config", Weight: models.WeightCritical},
			},
			Resolutions: []Resolution{
				{Priority: "medium", Category: "config", Description: "Enable the carrier's ELD integration and confirm device assignment for the truck"},
			},
		},
		{
			ID:          "load-not-found",
			Category:    models.CategoryLoadNotFound,
			Description: "Load is not present in the tracking system",
			Prior:       0.25,
			Symptoms: []Predicate{
				{Source: "tracking-api", FindingContains: "not found", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "tracking-api", Weight: models.WeightCritical},
				{Source: "ticket-system", Weight: models.WeightAuxiliary},
			},
			Resolutions: []Resolution{
				{Priority: "high", Category: "data", Description: "Verify the identifier with the requester and confirm the load was tendered to this system"},
			},
		},
		{
			ID:          "carrier-api-down",
			Category:    models.CategoryCarrierAPIDown,
			Description: "Carrier tracking API unreachable or erroring",
			Prior:       0.15,
			Symptoms: []Predicate{
				{Source: "recent-logs", FindingContains: "carrier api", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "recent-logs", Weight: models.WeightCritical},
				{Source: "historical-logs", Weight: models.WeightSupporting},
			},
			Resolutions: []Resolution{
				{Priority: "medium", Category: "integration", Description: "Check carrier API status page and retry queue; escalate to the carrier if the outage persists"},
			},
		},
		{
			ID:          "callback-delivery-failed",
			Category:    models.CategoryCallbackDeliveryFailed,
			Description: "Tracking updates produced but callback delivery to the shipper failed",
			Prior:       0.15,
			Symptoms: []Predicate{
				{Source: "callback-history", FindingContains: "delivery failed", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "callback-history", Weight: models.WeightCritical},
				{Source: "tracking-api", Weight: models.WeightSupporting},
			},
			Resolutions: []Resolution{
				{Priority: "medium", Category: "integration", Description: "Replay failed callbacks and verify the shipper endpoint accepts our payloads"},
			},
		},
		{
			ID:          "file-matching-failed",
			Category:    models.CategoryFileMatchingFailed,
			Description: "Inbound carrier file received but not matched to the load",
			Prior:       0.15,
			Symptoms: []Predicate{
				{Source: "historical-warehouse", FindingContains: "unmatched file", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "historical-warehouse", Weight: models.WeightCritical},
			},
			Resolutions: []Resolution{
				{Priority: "medium", Category: "data", Description: "Correct the reference mapping for the carrier file feed and reprocess the unmatched file"},
			},
		},
		{
			ID:          "tracking-not-enabled",
			Category:    models.CategoryTrackingNotEnabled,
			Description: "Tracking was never requested or enabled for this shipment",
			Prior:       0.20,
			Symptoms: []Predicate{
				{Source: "tracking-api", FindingContains: "tracking not requested", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "tracking-api", Weight: models.WeightCritical},
				{Source: "internal-config", Weight: models.WeightSupporting},
			},
			Resolutions: []Resolution{
				{Priority: "high", Category: "config", Description: "Enable tracking for the shipment and confirm the tracking request reached the carrier"},
			},
		},
		{
			ID:          "stale-vessel-data",
			Category:    models.CategoryStaleVesselData,
			Description: "Ocean tracking active but vessel positions are stale",
			Prior:       0.15,
			Symptoms: []Predicate{
				{Source: "ocean-events", FindingContains: "stale", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "ocean-events", Weight: models.WeightCritical},
				{Source: "recent-logs", Weight: models.WeightAuxiliary},
			},
			Resolutions: []Resolution{
				{Priority: "medium", Category: "data", Description: "Check the AIS/vessel feed for the carrier and re-subscribe the voyage if the feed lapsed"},
			},
		},
		{
			ID:          "missing-milestone-mapping",
			Category:    models.CategoryMissingMilestoneMapping,
			Description: "Carrier events arriving but milestone codes are unmapped",
			Prior:       0.15,
			Symptoms: []Predicate{
				{Source: "recent-logs", FindingContains: "unmapped milestone", Supports: boolp(true)},
			},
			Required: []RequiredEvidence{
				{Source: "recent-logs", Weight: models.WeightCritical},
				{Source: "documentation-search", Weight: models.WeightAuxiliary},
			},
			Resolutions: []Resolution{
				{Priority: "low", Category: "config", Description: "Add the carrier's milestone codes to the mapping table and backfill affected shipments"},
			},
		},
	}
}
