package core

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Difficulty adjuster defaults.
const (
	DifficultyWindowSize   = 100
	DifficultyAlpha        = 0.1
	MinTarget              = 1.0
	MaxTarget              = 1e12
	DefaultTargetBlockTime = 600.0 // seconds
)

// Capacity multipliers keep low-powered hardware in the game: a phone mines
// against half the base target, a cluster against three times it.
var tierTargetMultipliers = map[Tier]float64{
	Tier1: 0.5,
	Tier2: 1.0,
	Tier3: 1.5,
	Tier4: 2.0,
	Tier5: 3.0,
}

// Adjuster retargets difficulty with an EWMA over the median of recently
// observed work scores. The median keeps a single outlier block from yanking
// the target around.
type Adjuster struct {
	mu sync.Mutex

	target          float64
	targetBlockTime float64
	window          []float64 // last DifficultyWindowSize observed scores
	blockTimes      []float64
}

// NewAdjuster creates an adjuster starting from initialTarget.
func NewAdjuster(initialTarget, targetBlockTime float64) *Adjuster {
	if targetBlockTime <= 0 {
		targetBlockTime = DefaultTargetBlockTime
	}
	return &Adjuster{
		target:          clampTarget(initialTarget),
		targetBlockTime: targetBlockTime,
	}
}

// Update folds one observed (work score, block time) pair into the target:
//
//	target = alpha*target + (1-alpha)*(median(window) * time_ratio)
//
// clamped to [MinTarget, MaxTarget].
func (a *Adjuster) Update(observedScore, blockTime float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = append(a.window, observedScore)
	if len(a.window) > DifficultyWindowSize {
		a.window = a.window[len(a.window)-DifficultyWindowSize:]
	}
	a.blockTimes = append(a.blockTimes, blockTime)
	if len(a.blockTimes) > DifficultyWindowSize {
		a.blockTimes = a.blockTimes[len(a.blockTimes)-DifficultyWindowSize:]
	}

	median := windowMedian(a.window)

	if blockTime < 0.1 {
		blockTime = 0.1
	}
	timeRatio := a.targetBlockTime / blockTime

	a.target = clampTarget(DifficultyAlpha*a.target + (1-DifficultyAlpha)*(median*timeRatio))
	return a.target
}

// Target returns the current base target.
func (a *Adjuster) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// TargetForCapacity scales the base target by the tier's multiplier.
func (a *Adjuster) TargetForCapacity(tier Tier) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	mult, ok := tierTargetMultipliers[tier]
	if !ok {
		mult = 1.0
	}
	return a.target * mult
}

// MeanBlockTime reports the average observed block time in the window.
// Telemetry only, never consensus.
func (a *Adjuster) MeanBlockTime() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.blockTimes) == 0 {
		return 0
	}
	return stat.Mean(a.blockTimes, nil)
}

func windowMedian(window []float64) float64 {
	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func clampTarget(t float64) float64 {
	if t < MinTarget {
		return MinTarget
	}
	if t > MaxTarget {
		return MaxTarget
	}
	return t
}
