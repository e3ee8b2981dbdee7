package service

import (
	"math"
	"regexp"
	"sort"

	"github.com/noah-isme/member-signups/internal/models"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// matchQuestionLabels maps remote question names onto the configured keys.
// Exact names always match; with a positive threshold the remaining names are
// attached to the most similar key scoring at least threshold.
func matchQuestionLabels(questions []models.Record, wanted map[string]interface{}, threshold float64) map[string]string {
	keys := make([]string, 0, len(wanted))
	for key := range wanted {
		keys = append(keys, key)
	}

	labels := make(map[string]string, len(wanted))
	for _, question := range questions {
		name := question.String("name")
		if _, ok := wanted[name]; ok {
			labels[name] = name
			continue
		}
		if threshold <= 0 {
			continue
		}
		if best := CompareToList(name, keys, threshold); len(best) > 0 {
			labels[name] = best[0]
		}
	}
	return labels
}

// CompareToList returns the candidates whose cosine similarity with query is
// at least threshold, best first.
func CompareToList(query string, candidates []string, threshold float64) []string {
	type scored struct {
		score     float64
		candidate string
	}
	vq := wordVector(query)
	scores := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		scores = append(scores, scored{score: cosine(vq, wordVector(candidate)), candidate: candidate})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].candidate > scores[j].candidate
	})

	out := make([]string, 0, len(scores))
	for _, s := range scores {
		if s.score >= threshold {
			out = append(out, s.candidate)
		}
	}
	return out
}

func wordVector(text string) map[string]int {
	vec := map[string]int{}
	for _, word := range wordPattern.FindAllString(text, -1) {
		vec[word]++
	}
	return vec
}

func cosine(a, b map[string]int) float64 {
	var numerator float64
	for word, n := range a {
		numerator += float64(n * b[word])
	}
	var sumA, sumB float64
	for _, n := range a {
		sumA += float64(n * n)
	}
	for _, n := range b {
		sumB += float64(n * n)
	}
	denominator := math.Sqrt(sumA) * math.Sqrt(sumB)
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
