// Package extraction turns conversation windows into durable per-topic
// memory: it runs the analysis collaborator over each open topic, merges
// candidate assessments into stored records with a confidence-weighted rule,
// and watches for topic-set completion to trigger summary generation.
package extraction

import (
	"time"

	"github.com/samber/lo"

	"github.com/danfors/topicd/analysis"
	"github.com/danfors/topicd/memory"
)

// Confidence tiers for the weighted merge. High established confidence is
// sticky; low prior confidence yields to new evidence.
const (
	highConfidenceFloor  = 0.8
	lowConfidenceCeiling = 0.2
	establishedPriorBias = 0.7
	freshEvidenceBias    = 0.7
	balancedWeight       = 0.5
)

// mergeConfidence blends the existing confidence e with the candidate
// confidence c. The result always lands between the two inputs.
func mergeConfidence(e, c float64) float64 {
	switch {
	case e >= highConfidenceFloor:
		return establishedPriorBias*e + (1-establishedPriorBias)*c
	case e <= lowConfidenceCeiling:
		return (1-freshEvidenceBias)*e + freshEvidenceBias*c
	default:
		return balancedWeight*e + balancedWeight*c
	}
}

// Merge folds a candidate assessment into the existing record and returns
// the updated record. A nil existing record means this is the topic's first
// analysis and the candidate is taken as-is. The input record is not
// modified.
func Merge(existing *memory.TopicMemory, candidate *analysis.Assessment, topicID, topicSetID string, windowSize int, now time.Time) *memory.TopicMemory {
	merged := &memory.TopicMemory{
		TopicID:    topicID,
		TopicSetID: topicSetID,
	}

	if existing == nil {
		merged.IsAddressed = candidate.IsAddressed
		merged.Confidence = candidate.Confidence
		merged.ExtractedFacts = lo.Uniq(candidate.ExtractedFacts)
		merged.RelevantQuotes = lo.Uniq(candidate.RelevantQuotes)
		merged.StructuredData = copyStructured(candidate.StructuredData)
		merged.MessageCountAnalyzed = windowSize
	} else {
		merged.IsAddressed = candidate.IsAddressed
		merged.Confidence = mergeConfidence(existing.Confidence, candidate.Confidence)
		merged.ExtractedFacts = lo.Uniq(append(append([]string{}, existing.ExtractedFacts...), candidate.ExtractedFacts...))
		merged.RelevantQuotes = lo.Uniq(append(append([]string{}, existing.RelevantQuotes...), candidate.RelevantQuotes...))
		merged.StructuredData = copyStructured(existing.StructuredData)
		for k, v := range candidate.StructuredData {
			merged.StructuredData[k] = v
		}
		merged.FirstAddressedAt = existing.FirstAddressedAt
		merged.MessageCountAnalyzed = existing.MessageCountAnalyzed + windowSize
	}

	// Set once, on the turn the topic first becomes addressed. Never
	// cleared afterwards, even if a later verdict flips back to false.
	if merged.FirstAddressedAt == nil && merged.IsAddressed {
		firstAddressed := now
		merged.FirstAddressedAt = &firstAddressed
	}
	merged.LastAnalyzedAt = now

	return merged
}

func copyStructured(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
