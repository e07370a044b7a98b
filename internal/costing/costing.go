// Package costing translates a bundle of enabled paid features into a
// credit cost breakdown. Rates are compile-time constants: changing a
// rate is a deploy, not a data mutation.
package costing

// Per-unit rates, in credits.
const (
	// RateRankCheck applies per search term per device.
	RateRankCheck int64 = 1
	// RateLLMVisibility applies per question per provider queried.
	RateLLMVisibility int64 = 2
	// RateGeoGrid applies per configured grid point.
	RateGeoGrid int64 = 1
	// RateRSSAutoPost applies per feed item posted.
	RateRSSAutoPost int64 = 1
	// RateAIGeneration applies per generation call.
	RateAIGeneration int64 = 1
)

// Feature names used in breakdown items and ledger featureType tags.
const (
	FeatureRankCheck     = "rank_check"
	FeatureLLMVisibility = "llm_visibility"
	FeatureGeoGrid       = "geo_grid"
	FeatureRSSAutoPost   = "rss_auto_post"
	FeatureAIGeneration  = "ai_generation"
)

// FeatureSelections enumerates which sub-checks are enabled and their
// cardinality. Zero-valued selections are simply free.
type FeatureSelections struct {
	RankCheck     RankCheckSelection     `json:"rank_check"`
	LLMVisibility LLMVisibilitySelection `json:"llm_visibility"`
	GeoGrid       GeoGridSelection       `json:"geo_grid"`
	RSSAutoPost   RSSAutoPostSelection   `json:"rss_auto_post"`
	AIGeneration  AIGenerationSelection  `json:"ai_generation"`
}

type RankCheckSelection struct {
	SearchTerms int `json:"search_terms"`
	Devices     int `json:"devices"`
}

type LLMVisibilitySelection struct {
	Questions int `json:"questions"`
	Providers int `json:"providers"`
}

type GeoGridSelection struct {
	Enabled    bool `json:"enabled"`
	GridPoints int  `json:"grid_points"`
}

type RSSAutoPostSelection struct {
	Items int `json:"items"`
}

type AIGenerationSelection struct {
	Calls int `json:"calls"`
}

// CostItem is one sub-feature's contribution.
type CostItem struct {
	Feature string `json:"feature"`
	Units   int64  `json:"units"`
	Rate    int64  `json:"rate"`
	Cost    int64  `json:"cost"`
}

// CostBreakdown lists each billable sub-feature plus the total.
type CostBreakdown struct {
	Items []CostItem `json:"items"`
	Total int64      `json:"total"`
}

// Calculate prices a feature selection. It is deterministic and
// side-effect-free so callers may preview costs without committing to a
// debit. Selections that resolve to zero billable units contribute
// nothing and are omitted from Items; a zero total is not an error.
func Calculate(sel FeatureSelections) CostBreakdown {
	var breakdown CostBreakdown

	appendItem := func(feature string, units, rate int64) {
		if units <= 0 {
			return
		}
		item := CostItem{
			Feature: feature,
			Units:   units,
			Rate:    rate,
			Cost:    units * rate,
		}
		breakdown.Items = append(breakdown.Items, item)
		breakdown.Total += item.Cost
	}

	appendItem(FeatureRankCheck, int64(sel.RankCheck.SearchTerms)*int64(sel.RankCheck.Devices), RateRankCheck)
	appendItem(FeatureLLMVisibility, int64(sel.LLMVisibility.Questions)*int64(sel.LLMVisibility.Providers), RateLLMVisibility)
	if sel.GeoGrid.Enabled {
		appendItem(FeatureGeoGrid, int64(sel.GeoGrid.GridPoints), RateGeoGrid)
	}
	appendItem(FeatureRSSAutoPost, int64(sel.RSSAutoPost.Items), RateRSSAutoPost)
	appendItem(FeatureAIGeneration, int64(sel.AIGeneration.Calls), RateAIGeneration)

	return breakdown
}
