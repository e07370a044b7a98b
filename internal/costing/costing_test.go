package costing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		sel       FeatureSelections
		wantTotal int64
		wantItems int
	}{
		{
			name:      "empty selection is free",
			sel:       FeatureSelections{},
			wantTotal: 0,
			wantItems: 0,
		},
		{
			name: "rank check multiplies terms by devices",
			sel: FeatureSelections{
				RankCheck: RankCheckSelection{SearchTerms: 5, Devices: 2},
			},
			wantTotal: 10,
			wantItems: 1,
		},
		{
			name: "llm visibility at double rate",
			sel: FeatureSelections{
				LLMVisibility: LLMVisibilitySelection{Questions: 3, Providers: 2},
			},
			wantTotal: 12,
			wantItems: 1,
		},
		{
			name: "geo grid only when enabled",
			sel: FeatureSelections{
				GeoGrid: GeoGridSelection{Enabled: false, GridPoints: 9},
			},
			wantTotal: 0,
			wantItems: 0,
		},
		{
			name: "geo grid enabled",
			sel: FeatureSelections{
				GeoGrid: GeoGridSelection{Enabled: true, GridPoints: 9},
			},
			wantTotal: 9,
			wantItems: 1,
		},
		{
			name: "zero-unit selections omitted from items",
			sel: FeatureSelections{
				RankCheck:   RankCheckSelection{SearchTerms: 5, Devices: 0},
				RSSAutoPost: RSSAutoPostSelection{Items: 3},
			},
			wantTotal: 3,
			wantItems: 1,
		},
		{
			name: "full bundle",
			sel: FeatureSelections{
				RankCheck:     RankCheckSelection{SearchTerms: 10, Devices: 2},
				LLMVisibility: LLMVisibilitySelection{Questions: 4, Providers: 3},
				GeoGrid:       GeoGridSelection{Enabled: true, GridPoints: 25},
				RSSAutoPost:   RSSAutoPostSelection{Items: 8},
				AIGeneration:  AIGenerationSelection{Calls: 6},
			},
			// 20*1 + 12*2 + 25*1 + 8*1 + 6*1
			wantTotal: 83,
			wantItems: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.sel)
			assert.Equal(t, tt.wantTotal, got.Total)
			assert.Len(t, got.Items, tt.wantItems)

			var sum int64
			for _, item := range got.Items {
				assert.Positive(t, item.Units)
				assert.Equal(t, item.Units*item.Rate, item.Cost)
				sum += item.Cost
			}
			assert.Equal(t, got.Total, sum)
		})
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	sel := FeatureSelections{
		RankCheck:    RankCheckSelection{SearchTerms: 7, Devices: 3},
		AIGeneration: AIGenerationSelection{Calls: 2},
	}

	first := Calculate(sel)
	second := Calculate(sel)
	assert.Equal(t, first, second)
}
