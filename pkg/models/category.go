package models

// Category is the closed enumeration of root-cause categories. Every
// hypothesis, pattern, and decision-tree conclusion references one of these
// identifiers; free-form category strings are rejected at the boundaries.
type Category string

const (
	CategoryNetworkRelationshipMissing Category = "network_relationship_missing"
	CategoryJTScrapingError            Category = "jt_scraping_error"
	CategoryELDNotEnabled              Category = "eld_not_enabled"
	CategoryLoadNotFound               Category = "load_not_found"
	CategoryCarrierAPIDown             Category = "carrier_api_down"
	CategoryCallbackDeliveryFailed     Category = "callback_delivery_failed"
	CategoryFileMatchingFailed         Category = "file_matching_failed"
	CategoryTrackingNotEnabled         Category = "tracking_not_enabled"
	CategoryStaleVesselData            Category = "stale_vessel_data"
	CategoryMissingMilestoneMapping    Category = "missing_milestone_mapping"
	CategoryUnknown                    Category = "unknown"
)

// AllCategories lists every valid category, in stable order.
func AllCategories() []Category {
	return []Category{
		CategoryNetworkRelationshipMissing,
		CategoryJTScrapingError,
		CategoryELDNotEnabled,
		CategoryLoadNotFound,
		CategoryCarrierAPIDown,
		CategoryCallbackDeliveryFailed,
		CategoryFileMatchingFailed,
		CategoryTrackingNotEnabled,
		CategoryStaleVesselData,
		CategoryMissingMilestoneMapping,
		CategoryUnknown,
	}
}

// IsValid checks whether the category is part of the closed enumeration.
func (c Category) IsValid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}
