package core

import "math"

// Problem-class weights. Part of consensus: every node must score a block
// identically from its complexity field alone.
var problemClassWeights = map[ProblemClass]float64{
	ClassP:          1,
	ClassNP:         10,
	ClassNPComplete: 100,
	ClassNPHard:     100,
	ClassPSPACE:     500,
	ClassEXPTIME:    1000,
}

// ScoreInput carries the per-solution fields that feed the work score beyond
// the block's ComplexityMetrics.
type ScoreInput struct {
	// Epsilon is the approximation error of the solution: 0 for exact,
	// +Inf for an incorrect one.
	Epsilon float64

	// EnergyEfficiency scales the score for measured energy use; 1 when
	// unmetered.
	EnergyEfficiency float64
}

// ExactSolution is the ScoreInput for a correct, exact solution.
func ExactSolution() ScoreInput {
	return ScoreInput{Epsilon: 0, EnergyEfficiency: 1}
}

// WorkScore converts a complexity record into the scalar that drives fork
// choice, difficulty and rewards:
//
//	time_asym * sqrt(space_asym) * class_weight * size_factor * quality * energy
//	  + log(asym_time) + 0.5*log(asym_space)
//
// The additive log bonus rewards structurally harder instances even when the
// measured numbers are noisy. The function is pure and must reproduce
// bit-for-bit on every node; it is consensus, not telemetry.
func WorkScore(m ComplexityMetrics, input ScoreInput) float64 {
	timeAsym := measuredAsymmetry(m.MeasuredSolveTime, m.MeasuredVerifyTime)
	spaceAsym := m.AsymmetrySpace
	if spaceAsym < 1 {
		spaceAsym = 1
	}

	weight, ok := problemClassWeights[m.ProblemClass]
	if !ok {
		weight = 1
	}

	sizeFactor := math.Log2(float64(m.ProblemSize) + 1)
	if sizeFactor < 1 {
		sizeFactor = 1
	}

	quality := qualityScore(input.Epsilon)

	energy := input.EnergyEfficiency
	if energy <= 0 {
		energy = 1
	}

	score := timeAsym * math.Sqrt(spaceAsym) * weight * sizeFactor * quality * energy

	if m.AsymmetryTime > 1 {
		score += math.Log(m.AsymmetryTime)
	}
	if m.AsymmetrySpace > 1 {
		score += 0.5 * math.Log(m.AsymmetrySpace)
	}
	return score
}

// BlockWorkScore scores an admitted block from its complexity field. Blocks
// carry exact solutions only; approximate solutions never reach the tree.
func BlockWorkScore(b *Block) float64 {
	return WorkScore(b.Complexity, ExactSolution())
}

// qualityScore is 1 for exact solutions and 1/(1+eps) for eps-approximate
// ones. An incorrect solution (eps = +Inf) collapses to zero.
func qualityScore(epsilon float64) float64 {
	if epsilon <= 0 {
		return 1
	}
	if math.IsInf(epsilon, 1) {
		return 0
	}
	return 1 / (1 + epsilon)
}

// measuredAsymmetry floors both measurements so a sub-resolution verify time
// cannot blow the ratio up to infinity.
func measuredAsymmetry(solveTime, verifyTime float64) float64 {
	const floor = 1e-9
	if solveTime < floor {
		solveTime = floor
	}
	if verifyTime < floor {
		verifyTime = floor
	}
	ratio := solveTime / verifyTime
	if ratio < 1 {
		return 1
	}
	return ratio
}
