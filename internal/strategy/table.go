// Package strategy implements adaptive strategy selection: keyword scoring
// of a brief against weighted strategies, and an exponential moving average
// that updates weights from feedback ratings.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/dyluth/atelier/pkg/blackboard"
)

const (
	// LearningRate is the feedback smoothing factor.
	LearningRate = 0.1

	// DefaultTopK is the length of the preferred strategy list.
	DefaultTopK = 3

	// MaxRating is the top of the feedback rating scale.
	MaxRating = 10.0
)

var (
	// ErrUnknownStrategy is returned for strategy names the table doesn't declare.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidRating is returned for ratings outside [0, MaxRating].
	ErrInvalidRating = errors.New("rating out of range")
)

// Strategy is one named approach with its brief-matching keywords.
type Strategy struct {
	Name          string
	Keywords      []string
	DefaultWeight float64
}

// Table holds the weights of a fixed, ordered strategy set.
// Safe for concurrent use; updates are serialized.
type Table struct {
	strategies []Strategy
	index      map[string]int
	topK       int

	mu        sync.RWMutex
	weights   []float64
	preferred []string
}

// NewTable creates a table seeded with each strategy's default weight.
// Declaration order is the tie-break order for selection and ranking.
func NewTable(strategies []Strategy, topK int) (*Table, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("strategy table needs at least one strategy")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	t := &Table{
		strategies: make([]Strategy, len(strategies)),
		index:      make(map[string]int, len(strategies)),
		topK:       topK,
		weights:    make([]float64, len(strategies)),
	}

	for i, s := range strategies {
		if s.Name == "" {
			return nil, fmt.Errorf("strategy at index %d has no name", i)
		}
		if _, dup := t.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate strategy %q", s.Name)
		}
		keywords := make([]string, len(s.Keywords))
		for j, kw := range s.Keywords {
			keywords[j] = strings.ToLower(kw)
		}
		t.strategies[i] = Strategy{Name: s.Name, Keywords: keywords, DefaultWeight: clamp(s.DefaultWeight)}
		t.index[s.Name] = i
		t.weights[i] = t.strategies[i].DefaultWeight
	}
	t.preferred = t.rankLocked()

	return t, nil
}

// MustNewTable is NewTable for static strategy sets; it panics on error.
func MustNewTable(strategies []Strategy, topK int) *Table {
	t, err := NewTable(strategies, topK)
	if err != nil {
		panic(err)
	}
	return t
}

// Names returns the strategy names in declaration order.
func (t *Table) Names() []string {
	names := make([]string, len(t.strategies))
	for i, s := range t.strategies {
		names[i] = s.Name
	}
	return names
}

// Has reports whether name is a declared strategy.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Default returns the first declared strategy.
func (t *Table) Default() string {
	return t.strategies[0].Name
}

// Score is one strategy's match against a brief.
type Score struct {
	Strategy string
	Matches  int
	Weight   float64
	Value    float64
}

// Scores returns every strategy's score against the brief in declaration
// order. A keyword counts once however often it occurs.
func (t *Table) Scores(brief blackboard.Brief) []Score {
	text := briefText(brief)

	t.mu.RLock()
	defer t.mu.RUnlock()

	scores := make([]Score, len(t.strategies))
	for i, s := range t.strategies {
		matches := 0
		for _, kw := range s.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				matches++
			}
		}
		scores[i] = Score{
			Strategy: s.Name,
			Matches:  matches,
			Weight:   t.weights[i],
			Value:    float64(matches) * t.weights[i],
		}
	}
	return scores
}

// Select returns the highest-scoring strategy for the brief. Ties go to the
// earliest declared strategy. Select never mutates the table.
func (t *Table) Select(brief blackboard.Brief) string {
	scores := t.Scores(brief)
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Value > scores[best].Value {
			best = i
		}
	}
	return scores[best].Strategy
}

// ApplyFeedback folds a 0-10 rating into the strategy's weight:
//
//	w = w*(1-α) + (rating/10)*α
//
// and recomputes the preferred list. Returns the new weight.
func (t *Table) ApplyFeedback(name string, rating float64) (float64, error) {
	i, ok := t.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if math.IsNaN(rating) || rating < 0 || rating > MaxRating {
		return 0, fmt.Errorf("%w: %v (expected 0-%v)", ErrInvalidRating, rating, MaxRating)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.weights[i]*(1-LearningRate) + (rating/MaxRating)*LearningRate
	t.weights[i] = clamp(w)
	t.preferred = t.rankLocked()

	return t.weights[i], nil
}

// Weight returns the current weight of a strategy.
func (t *Table) Weight(name string) (float64, error) {
	i, ok := t.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.weights[i], nil
}

// Weights returns a copy of every strategy's weight.
func (t *Table) Weights() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.strategies))
	for i, s := range t.strategies {
		out[s.Name] = t.weights[i]
	}
	return out
}

// Preferred returns the top-k strategies by weight, ties in declaration order.
func (t *Table) Preferred() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.preferred...)
}

// Load overwrites weights for the strategies present in weights. Unknown
// names are ignored so a table persisted by an older strategy set still
// loads. Returns the number of weights applied.
func (t *Table) Load(weights map[string]float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for name, w := range weights {
		i, ok := t.index[name]
		if !ok {
			continue
		}
		t.weights[i] = clamp(w)
		applied++
	}
	t.preferred = t.rankLocked()
	return applied
}

// Reset restores every default weight.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.strategies {
		t.weights[i] = s.DefaultWeight
	}
	t.preferred = t.rankLocked()
}

func (t *Table) rankLocked() []string {
	order := make([]int, len(t.strategies))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.weights[order[a]] > t.weights[order[b]]
	})

	k := t.topK
	if k > len(order) {
		k = len(order)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = t.strategies[order[i]].Name
	}
	return out
}

func briefText(brief blackboard.Brief) string {
	parts := make([]string, 0, 2+len(brief.Requirements))
	parts = append(parts, brief.Title, brief.Description)
	parts = append(parts, brief.Requirements...)
	return strings.ToLower(strings.Join(parts, " "))
}

func clamp(w float64) float64 {
	switch {
	case math.IsNaN(w) || w < 0:
		return 0
	case w > 1:
		return 1
	default:
		return w
	}
}
