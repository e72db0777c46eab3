package core

import (
	"context"
	"fmt"
	"sort"
)

// Solver generates, solves and verifies proof-of-work instances for one
// problem type. Generate must be a pure deterministic function of its
// inputs; Verify must run in time polynomial in the problem size regardless
// of solution size. Solve may run for minutes and belongs off the validation
// path.
type Solver interface {
	// ProblemType returns the registry key, e.g. "subset_sum".
	ProblemType() string

	// Generate derives the unique instance for (tier, parentHash, epochSalt).
	Generate(tier Tier, parentHash Hash, epochSalt Salt) (*ProofInstance, error)

	// Solve searches for a solution within limits. Cancelling ctx abandons
	// the attempt; exceeding limits returns ErrSolveTimeout or ErrTierLimit.
	Solve(ctx context.Context, instance *ProofInstance, limits ResourceLimits) (*ProofSolution, error)

	// Verify checks a claimed solution and measures the verify cost.
	Verify(instance *ProofInstance, solution *ProofSolution, limits ResourceLimits) (*VerificationResult, error)

	// CostHint estimates the expected solve cost of an instance, for miner
	// scheduling. Not consensus.
	CostHint(instance *ProofInstance) float64

	// ComplexityBound returns the theoretical complexity profile for an
	// instance of size n.
	ComplexityBound(n int) ComplexityMetrics
}

// Registry maps problem types to solvers. It is built once at startup and
// injected into the consensus engine; there is no process-wide registry, so
// tests construct their own with mock solvers.
type Registry struct {
	solvers map[string]Solver
}

// NewRegistry builds a registry from the given solvers.
func NewRegistry(solvers ...Solver) *Registry {
	r := &Registry{solvers: make(map[string]Solver, len(solvers))}
	for _, s := range solvers {
		r.solvers[s.ProblemType()] = s
	}
	return r
}

// Solver returns the solver registered for problemType.
func (r *Registry) Solver(problemType string) (Solver, error) {
	s, ok := r.solvers[problemType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProblemType, problemType)
	}
	return s, nil
}

// Types returns the registered problem types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.solvers))
	for t := range r.solvers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
