package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		base      int
		orderType string
		budget    string
		notes     string
		want      Result
	}{
		{
			name:      "upgrade whole top budget with notes",
			base:      BaseUpgrade,
			orderType: "Whole",
			budget:    "$2000+",
			notes:     "Looking for grass-fed, ready by spring",
			want:      Result{Score: 100, Classification: High},
		},
		{
			name:      "backfill half mid budget",
			base:      BaseBackfill,
			orderType: "Half",
			budget:    "$1000-$2000",
			want:      Result{Score: 50, Classification: Medium},
		},
		{
			name:      "backfill nothing else is low",
			base:      BaseBackfill,
			orderType: "None",
			budget:    "unsure",
			want:      Result{Score: 10, Classification: Low},
		},
		{
			name:      "en dash budget is normalized",
			base:      BaseBackfill,
			orderType: "Quarter",
			budget:    "$500 – $1000",
			want:      Result{Score: 30, Classification: Medium},
		},
		{
			name:      "notes of exactly twenty characters earn nothing",
			base:      BaseBackfill,
			orderType: "None",
			notes:     "12345678901234567890",
			want:      Result{Score: 10, Classification: Low},
		},
		{
			name:      "notes are measured in characters not bytes",
			base:      BaseBackfill,
			orderType: "None",
			notes:     "ñññññññññññññññññññ",
			want:      Result{Score: 10, Classification: Low},
		},
		{
			name:      "padded notes over twenty characters earn the bonus",
			base:      BaseBackfill,
			orderType: "None",
			notes:     "   ready by spring   ",
			want:      Result{Score: 25, Classification: Low},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.base, tt.orderType, tt.budget, tt.notes)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Score(tt.base, tt.orderType, tt.budget, tt.notes), "deterministic")
		})
	}
}

func TestClassify_Boundaries(t *testing.T) {
	assert.Equal(t, Low, Classify(29))
	assert.Equal(t, Medium, Classify(30))
	assert.Equal(t, Medium, Classify(59))
	assert.Equal(t, High, Classify(60))
}

func TestNormalizeBudget(t *testing.T) {
	assert.Equal(t, "$1000-$2000", NormalizeBudget(" $1,000 — $2,000 "))
	assert.Equal(t, "$2000+", NormalizeBudget("$2000 +"))
}
