package extraction

import (
	"math"
	"testing"
	"time"

	"github.com/danfors/topicd/analysis"
	"github.com/danfors/topicd/memory"
)

func TestMergeConfidence_Tiers(t *testing.T) {
	tests := []struct {
		name string
		e, c float64
		want float64
	}{
		{"established prior dampens noisy turn", 0.9, 0.1, 0.7*0.9 + 0.3*0.1}, // 0.66
		{"low prior yields to new evidence", 0.1, 0.9, 0.3*0.1 + 0.7*0.9},     // 0.66
		{"mid-range averages", 0.5, 0.5, 0.5},
		{"high boundary", 0.8, 0.0, 0.7 * 0.8},
		{"low boundary", 0.2, 1.0, 0.3*0.2 + 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeConfidence(tt.e, tt.c)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("mergeConfidence(%v, %v) = %v, want %v", tt.e, tt.c, got, tt.want)
			}
		})
	}
}

func TestMergeConfidence_BoundedByInputs(t *testing.T) {
	for e := 0.0; e <= 1.0; e += 0.05 {
		for c := 0.0; c <= 1.0; c += 0.05 {
			got := mergeConfidence(e, c)
			lo, hi := math.Min(e, c), math.Max(e, c)
			if got < lo-1e-9 || got > hi+1e-9 {
				t.Fatalf("mergeConfidence(%v, %v) = %v outside [%v, %v]", e, c, got, lo, hi)
			}
		}
	}
}

func TestMerge_FirstAnalysisTakesCandidateAsIs(t *testing.T) {
	now := time.Now().UTC()
	merged := Merge(nil, &analysis.Assessment{
		IsAddressed:    false,
		Confidence:     0.3,
		ExtractedFacts: []string{"a", "a", "b"},
	}, "topic-a", "set", 4, now)

	if merged.Confidence != 0.3 {
		t.Errorf("first merge must not dampen candidate confidence: %v", merged.Confidence)
	}
	if len(merged.ExtractedFacts) != 2 {
		t.Errorf("facts not deduplicated: %v", merged.ExtractedFacts)
	}
	if merged.FirstAddressedAt != nil {
		t.Errorf("firstAddressedAt must stay unset while not addressed")
	}
	if merged.MessageCountAnalyzed != 4 {
		t.Errorf("message count = %d, want 4", merged.MessageCountAnalyzed)
	}
}

func TestMerge_DedupUnionPreservesExistingOrderFirst(t *testing.T) {
	existing := &memory.TopicMemory{
		TopicID:        "topic-a",
		TopicSetID:     "set",
		ExtractedFacts: []string{"one", "two"},
		RelevantQuotes: []string{"q1"},
	}
	merged := Merge(existing, &analysis.Assessment{
		ExtractedFacts: []string{"two", "three"},
		RelevantQuotes: []string{"q1", "q2"},
	}, "topic-a", "set", 1, time.Now().UTC())

	wantFacts := []string{"one", "two", "three"}
	if len(merged.ExtractedFacts) != len(wantFacts) {
		t.Fatalf("facts = %v, want %v", merged.ExtractedFacts, wantFacts)
	}
	for i, fact := range wantFacts {
		if merged.ExtractedFacts[i] != fact {
			t.Errorf("facts[%d] = %q, want %q", i, merged.ExtractedFacts[i], fact)
		}
	}
	if len(merged.RelevantQuotes) != 2 {
		t.Errorf("quotes = %v", merged.RelevantQuotes)
	}
}

func TestMerge_StructuredDataCandidateWins(t *testing.T) {
	existing := &memory.TopicMemory{
		TopicID:        "topic-a",
		TopicSetID:     "set",
		StructuredData: map[string]interface{}{"onset": "unknown", "side": "left"},
	}
	merged := Merge(existing, &analysis.Assessment{
		StructuredData: map[string]interface{}{"onset": "2 weeks ago"},
	}, "topic-a", "set", 1, time.Now().UTC())

	if merged.StructuredData["onset"] != "2 weeks ago" {
		t.Errorf("candidate should win on conflict: %v", merged.StructuredData)
	}
	if merged.StructuredData["side"] != "left" {
		t.Errorf("existing keys should survive: %v", merged.StructuredData)
	}
	if existing.StructuredData["onset"] != "unknown" {
		t.Errorf("merge must not mutate the input record")
	}
}

func TestMerge_FirstAddressedAtIsImmutable(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	merged := Merge(nil, &analysis.Assessment{IsAddressed: true, Confidence: 0.6}, "topic-a", "set", 1, t0)
	if merged.FirstAddressedAt == nil || !merged.FirstAddressedAt.Equal(t0) {
		t.Fatalf("expected firstAddressedAt set to %v, got %v", t0, merged.FirstAddressedAt)
	}

	// A later merge, even one that flips the verdict back to false, must
	// not touch the timestamp.
	later := Merge(merged, &analysis.Assessment{IsAddressed: false, Confidence: 0.1}, "topic-a", "set", 1, t0.Add(time.Hour))
	if later.FirstAddressedAt == nil || !later.FirstAddressedAt.Equal(t0) {
		t.Errorf("firstAddressedAt changed: %v", later.FirstAddressedAt)
	}
	if later.IsAddressed {
		t.Errorf("most recent verdict should win")
	}

	// And once unset-while-addressed-false, it is set on the first true.
	again := Merge(later, &analysis.Assessment{IsAddressed: true, Confidence: 0.9}, "topic-a", "set", 1, t0.Add(2*time.Hour))
	if !again.FirstAddressedAt.Equal(t0) {
		t.Errorf("firstAddressedAt must never move once set: %v", again.FirstAddressedAt)
	}
}

func TestMerge_CountsAndTimestampsAdvance(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	first := Merge(nil, &analysis.Assessment{Confidence: 0.4}, "topic-a", "set", 10, t0)
	second := Merge(first, &analysis.Assessment{Confidence: 0.4}, "topic-a", "set", 7, t0.Add(time.Minute))

	if second.MessageCountAnalyzed != 17 {
		t.Errorf("message count = %d, want 17", second.MessageCountAnalyzed)
	}
	if !second.LastAnalyzedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("lastAnalyzedAt not refreshed: %v", second.LastAnalyzedAt)
	}
}
