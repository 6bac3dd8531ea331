package followup

import (
	"testing"

	"sqlscout/internal/memory"
)

func TestDetectEmptyHistory(t *testing.T) {
	// Any utterance against empty history is never a follow-up.
	for _, u := range []string{"Show me top 10 products by revenue", "what about Q4?", "", "it"} {
		isFollowup, confidence := Detect(u, nil)
		if isFollowup || confidence != 1.0 {
			t.Errorf("Detect(%q, nil) = (%v, %v), want (false, 1.0)", u, isFollowup, confidence)
		}
	}
}

func TestDetectScoring(t *testing.T) {
	history := []memory.Entry{{UserQuery: "Top products by revenue"}}

	tests := []struct {
		name           string
		utterance      string
		wantFollowup   bool
		wantConfidence float64
	}{
		{
			name:           "short pronoun query",
			utterance:      "what about Q4?",
			wantFollowup:   true,
			wantConfidence: 0.9,
		},
		{
			name:           "dimension modifier wins over entity",
			utterance:      "revenue by region",
			wantFollowup:   true,
			wantConfidence: 0.85,
		},
		{
			name:           "complete action phrase is standalone",
			utterance:      "list all products",
			wantFollowup:   false,
			wantConfidence: 0.9,
		},
		{
			name:           "short with entity is standalone",
			utterance:      "just sales data",
			wantFollowup:   false,
			wantConfidence: 0.7,
		},
		{
			name:           "keywords without entity in longer query",
			utterance:      "compare that against the earlier numbers please",
			wantFollowup:   true,
			wantConfidence: 0.7,
		},
		{
			name:           "long standalone query",
			utterance:      "monthly revenue of electronics products across every region",
			wantFollowup:   false,
			wantConfidence: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isFollowup, confidence := Detect(tt.utterance, history)
			if isFollowup != tt.wantFollowup || confidence != tt.wantConfidence {
				t.Errorf("Detect(%q) = (%v, %v), want (%v, %v)",
					tt.utterance, isFollowup, confidence, tt.wantFollowup, tt.wantConfidence)
			}
		})
	}
}
