package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// ProblemTypeSubsetSum is the registry key of the reference solver.
const ProblemTypeSubsetSum = "subset_sum"

// SubsetSumParams are the decoded problem parameters for a Subset Sum
// instance. Field order is part of the canonical encoding.
type SubsetSumParams struct {
	Elements []int64 `json:"elements"`
	Target   int64   `json:"target"`
}

// SubsetSumSolver is the reference NP-complete problem implementation.
// Instances are derived deterministically from (parent_hash, epoch_salt,
// tier); solving uses meet-in-the-middle, verification is a linear scan.
type SubsetSumSolver struct {
	// MaxElementValue bounds generated element magnitudes.
	MaxElementValue int64
}

// NewSubsetSumSolver returns a solver with default generation parameters.
func NewSubsetSumSolver() *SubsetSumSolver {
	return &SubsetSumSolver{MaxElementValue: 1_000_000}
}

// ProblemType implements Solver.
func (s *SubsetSumSolver) ProblemType() string { return ProblemTypeSubsetSum }

// Generate implements Solver. The problem size is selected from the low 32
// bits of the parent hash within the tier's range; elements and target come
// from a PRNG seeded by H(parent_hash || epoch_salt || tier), so every node
// derives byte-identical instances for the same inputs.
func (s *SubsetSumSolver) Generate(tier Tier, parentHash Hash, epochSalt Salt) (*ProofInstance, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier: %d", int(tier))
	}

	minSize, maxSize := tier.SizeRange()
	low32 := binary.BigEndian.Uint32(parentHash[28:32])
	n := minSize + int(low32%uint32(maxSize-minSize+1))

	rng := rand.New(rand.NewSource(instanceSeed(parentHash, epochSalt, tier)))

	elements := make([]int64, n)
	for i := range elements {
		elements[i] = 1 + rng.Int63n(s.MaxElementValue)
	}

	// The target is the sum of a random non-empty subset, so every instance
	// is solvable.
	var target int64
	selected := 0
	for _, e := range elements {
		if rng.Intn(2) == 1 {
			target += e
			selected++
		}
	}
	if selected == 0 {
		target = elements[rng.Intn(n)]
	}

	params, err := CanonicalJSON(SubsetSumParams{Elements: elements, Target: target})
	if err != nil {
		return nil, err
	}

	return &ProofInstance{
		ProblemType:   ProblemTypeSubsetSum,
		ProblemParams: params,
		ProblemSize:   n,
		Tier:          tier,
		EpochSalt:     epochSalt,
		ParentHash:    parentHash,
	}, nil
}

// Solve implements Solver using meet-in-the-middle: O(2^(n/2)) time and
// space against the verifier's O(n) scan.
func (s *SubsetSumSolver) Solve(ctx context.Context, instance *ProofInstance, limits ResourceLimits) (*ProofSolution, error) {
	params, err := decodeSubsetSumParams(instance)
	if err != nil {
		return nil, err
	}

	if limits.MaxSolveSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(limits.MaxSolveSeconds*float64(time.Second)))
		defer cancel()
	}

	start := time.Now()

	n := len(params.Elements)
	half := n / 2
	left, right := params.Elements[:half], params.Elements[half:]

	// Enumerate all subset sums of the left half.
	leftSums := make(map[int64]int, 1<<uint(len(left)))
	for mask := 0; mask < 1<<uint(len(left)); mask++ {
		if mask%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w after %.2fs", ErrSolveTimeout, time.Since(start).Seconds())
			}
		}
		var sum int64
		for i, e := range left {
			if mask&(1<<uint(i)) != 0 {
				sum += e
			}
		}
		if _, seen := leftSums[sum]; !seen {
			leftSums[sum] = mask
		}
	}

	spaceBytes := uint64(len(leftSums)) * 16
	if limits.MaxMemoryBytes > 0 && spaceBytes > limits.MaxMemoryBytes {
		return nil, fmt.Errorf("%w: table of %d bytes exceeds budget", ErrTierLimit, spaceBytes)
	}

	// Scan right-half subsets for a complement.
	for mask := 0; mask < 1<<uint(len(right)); mask++ {
		if mask%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w after %.2fs", ErrSolveTimeout, time.Since(start).Seconds())
			}
		}
		var sum int64
		for i, e := range right {
			if mask&(1<<uint(i)) != 0 {
				sum += e
			}
		}
		leftMask, ok := leftSums[params.Target-sum]
		if !ok {
			continue
		}
		if leftMask == 0 && mask == 0 {
			continue // empty subset is not a solution
		}

		indices := maskIndices(leftMask, 0)
		indices = append(indices, maskIndices(mask, half)...)
		sort.Ints(indices)

		return &ProofSolution{
			SolutionData:     indices,
			SolutionHash:     SolutionHash(indices),
			SolveTimeSeconds: time.Since(start).Seconds(),
			SolveSpaceBytes:  spaceBytes,
		}, nil
	}

	return nil, fmt.Errorf("no subset sums to target %d", params.Target)
}

// Verify implements Solver. It runs in O(n): index bounds, index uniqueness,
// and the selected subset summing to the target.
func (s *SubsetSumSolver) Verify(instance *ProofInstance, solution *ProofSolution, limits ResourceLimits) (*VerificationResult, error) {
	params, err := decodeSubsetSumParams(instance)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	valid := true
	switch {
	case solution == nil || len(solution.SolutionData) == 0:
		valid = false
	case len(solution.SolutionData) > len(params.Elements):
		valid = false
	default:
		seen := make(map[int]bool, len(solution.SolutionData))
		var sum int64
		for _, idx := range solution.SolutionData {
			if idx < 0 || idx >= len(params.Elements) || seen[idx] {
				valid = false
				break
			}
			seen[idx] = true
			sum += params.Elements[idx]
		}
		if valid && sum != params.Target {
			valid = false
		}
	}

	verifyTime := time.Since(start).Seconds()

	complexity := s.ComplexityBound(instance.ProblemSize)
	complexity.MeasuredVerifyTime = verifyTime
	if solution != nil {
		complexity.MeasuredSolveTime = solution.SolveTimeSeconds
		complexity.SolutionSize = len(solution.SolutionData)
	}

	ratio := 0.0
	var space uint64
	if solution != nil {
		if verifyTime > 0 {
			ratio = solution.SolveTimeSeconds / verifyTime
		}
		space = uint64(len(solution.SolutionData)) * 8
	}

	return &VerificationResult{
		IsValid:        valid,
		VerifyTime:     verifyTime,
		VerifySpace:    space,
		Complexity:     complexity,
		AsymmetryRatio: ratio,
	}, nil
}

// CostHint implements Solver: expected meet-in-the-middle cost.
func (s *SubsetSumSolver) CostHint(instance *ProofInstance) float64 {
	return math.Exp2(float64(instance.ProblemSize) / 2)
}

// ComplexityBound implements Solver.
func (s *SubsetSumSolver) ComplexityBound(n int) ComplexityMetrics {
	solveOps := math.Exp2(float64(n) / 2)
	verifyOps := math.Max(float64(n), 1)
	return ComplexityMetrics{
		SolveBound:     "O(2^(n/2))",
		VerifyBound:    "O(n)",
		ProblemSize:    n,
		AsymmetryTime:  solveOps / verifyOps,
		AsymmetrySpace: solveOps / verifyOps,
		ProblemClass:   ClassNPComplete,
	}
}

func instanceSeed(parentHash Hash, epochSalt Salt, tier Tier) int64 {
	h := sha256.New()
	h.Write(parentHash[:])
	h.Write(epochSalt[:])
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(tier))
	h.Write(tb[:])
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

func decodeSubsetSumParams(instance *ProofInstance) (*SubsetSumParams, error) {
	if instance.ProblemType != ProblemTypeSubsetSum {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProblemType, instance.ProblemType)
	}
	var params SubsetSumParams
	if err := json.Unmarshal(instance.ProblemParams, &params); err != nil {
		return nil, fmt.Errorf("failed to decode problem params: %v", err)
	}
	if len(params.Elements) == 0 {
		return nil, fmt.Errorf("empty problem instance")
	}
	return &params, nil
}

func maskIndices(mask, offset int) []int {
	var indices []int
	for i := 0; mask>>uint(i) != 0; i++ {
		if mask&(1<<uint(i)) != 0 {
			indices = append(indices, offset+i)
		}
	}
	return indices
}
