package interview

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/interviewd/internal/persona"
)

// Aggregator folds per-persona feedback into one overall assessment.
type Aggregator struct {
	weights map[persona.Kind]float64
}

// NewAggregator creates an aggregator. Kinds missing from weights count
// with weight 1.0; a zero weight excludes a persona's score from the
// mean but keeps its commentary and concerns.
func NewAggregator(weights map[persona.Kind]float64) *Aggregator {
	w := make(map[persona.Kind]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Aggregator{weights: w}
}

// Aggregate computes the weighted mean of sub-scores, concatenates
// commentary and unions concerns. The result is deterministic: entries
// are ordered by the personas' sequence positions regardless of the
// order they were collected. Fails with ErrInsufficientFeedback when no
// entries exist.
func (a *Aggregator) Aggregate(entries []persona.FeedbackEntry) (*Assessment, error) {
	if len(entries) == 0 {
		return nil, ErrInsufficientFeedback
	}

	ordered := make([]persona.FeedbackEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return sequencePos(ordered[i].Kind) < sequencePos(ordered[j].Kind)
	})

	var (
		weightedSum float64
		totalWeight float64
		commentary  strings.Builder
		concernSet  = map[string]bool{}
	)
	for _, e := range ordered {
		w := a.weightOf(e.Kind)
		weightedSum += e.Score * w
		totalWeight += w

		roleName := string(e.Kind)
		if d, ok := persona.DescriptorOf(e.Kind); ok {
			roleName = d.RoleName
		}
		fmt.Fprintf(&commentary, "[%s] %s\n", roleName, e.Commentary)

		for _, c := range e.Concerns {
			concernSet[c] = true
		}
	}
	if totalWeight == 0 {
		return nil, fmt.Errorf("%w: all contributing weights are zero", ErrInsufficientFeedback)
	}

	concerns := make([]string, 0, len(concernSet))
	for c := range concernSet {
		concerns = append(concerns, c)
	}
	sort.Strings(concerns)

	return &Assessment{
		OverallScore: weightedSum / totalWeight,
		Commentary:   strings.TrimSuffix(commentary.String(), "\n"),
		Concerns:     concerns,
		Entries:      ordered,
	}, nil
}

func (a *Aggregator) weightOf(k persona.Kind) float64 {
	if w, ok := a.weights[k]; ok {
		return w
	}
	return 1.0
}

func sequencePos(k persona.Kind) int {
	if d, ok := persona.DescriptorOf(k); ok {
		return d.SequencePos
	}
	return int(^uint(0) >> 1)
}
