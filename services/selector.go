package services

import (
	"math/rand"
	"sync"
	"time"

	"colorbet/config"
	"colorbet/models"
)

type SelectInput struct {
	Pools map[models.Outcome]models.Amount
	// Weights overrides the selector's configured weights when non-empty.
	Weights map[string]float64
}

// WinnerSelector picks the winning outcome of a round. Implementations hold
// no round state; the forced override is handled by the settlement engine.
type WinnerSelector interface {
	Select(in SelectInput) models.Outcome
	Mode() string
}

func NewSelector(cfg config.GameConfig, rng *rand.Rand) WinnerSelector {
	outcomes := outcomesOf(cfg)
	if cfg.SelectionMode == config.ModePoolInverse {
		return NewPoolInverseSelector(outcomes, rng)
	}
	return NewProbabilitySelector(outcomes, cfg.Weights, rng)
}

// lockedRand serialises access to a *rand.Rand, which is not safe for
// concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(r *rand.Rand) *lockedRand {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &lockedRand{r: r}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// ProbabilitySelector draws u in [0,1) and returns the outcome whose slice of
// the normalised weight interval contains it.
type ProbabilitySelector struct {
	outcomes []models.Outcome
	weights  map[string]float64
	rng      *lockedRand
}

func NewProbabilitySelector(outcomes []models.Outcome, weights map[string]float64, rng *rand.Rand) *ProbabilitySelector {
	return &ProbabilitySelector{outcomes: outcomes, weights: weights, rng: newLockedRand(rng)}
}

func (s *ProbabilitySelector) Mode() string { return config.ModeProbability }

func (s *ProbabilitySelector) Select(in SelectInput) models.Outcome {
	weights := s.weights
	if len(in.Weights) > 0 {
		weights = in.Weights
	}

	total := 0.0
	for _, o := range s.outcomes {
		if w := weights[string(o)]; w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return s.outcomes[s.rng.Intn(len(s.outcomes))]
	}

	u := s.rng.Float64()
	cum := 0.0
	var last models.Outcome
	for _, o := range s.outcomes {
		w := weights[string(o)]
		if w <= 0 {
			continue
		}
		cum += w / total
		last = o
		if u < cum {
			return o
		}
	}
	// float rounding can leave cum a hair under 1
	return last
}

// PoolInverseSelector awards the round to the outcome with the smallest pool,
// so the house always pays out the least-backed side. Ties, including a round
// with no bets at all, are broken uniformly at random among the tied outcomes.
type PoolInverseSelector struct {
	outcomes []models.Outcome
	rng      *lockedRand
}

func NewPoolInverseSelector(outcomes []models.Outcome, rng *rand.Rand) *PoolInverseSelector {
	return &PoolInverseSelector{outcomes: outcomes, rng: newLockedRand(rng)}
}

func (s *PoolInverseSelector) Mode() string { return config.ModePoolInverse }

func (s *PoolInverseSelector) Select(in SelectInput) models.Outcome {
	var tied []models.Outcome
	var smallest models.Amount
	for i, o := range s.outcomes {
		p := in.Pools[o]
		switch {
		case i == 0 || p < smallest:
			smallest = p
			tied = append(tied[:0], o)
		case p == smallest:
			tied = append(tied, o)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	return tied[s.rng.Intn(len(tied))]
}
