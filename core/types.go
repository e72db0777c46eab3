package core

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// String returns the hash as a hexadecimal string.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all zero bytes.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler so hashes serialize as hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid hash hex: %v", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("invalid hash length: %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// ParseHash decodes a 64-hex-char string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// Salt is 32 bytes of entropy bound into a commitment.
type Salt [32]byte

// MarshalText implements encoding.TextMarshaler.
func (s Salt) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Salt) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid salt hex: %v", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("invalid salt length: %d", len(b))
	}
	copy(s[:], b)
	return nil
}

// Tier is a hardware capacity class bounding the problem size a miner may claim.
type Tier int

const (
	Tier1 Tier = 1 // mobile
	Tier2 Tier = 2 // laptop
	Tier3 Tier = 3 // desktop
	Tier4 Tier = 4 // server
	Tier5 Tier = 5 // cluster
)

// SizeRange returns the inclusive problem-size bounds for the tier.
func (t Tier) SizeRange() (min, max int) {
	switch t {
	case Tier1:
		return 8, 12
	case Tier2:
		return 12, 16
	case Tier3:
		return 16, 20
	case Tier4:
		return 20, 24
	case Tier5:
		return 24, 32
	default:
		return 8, 12
	}
}

// Valid reports whether t is a known capacity tier.
func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier5
}

func (t Tier) String() string {
	return fmt.Sprintf("TIER_%d", int(t))
}

// ProblemClass is a complexity class label attached to a problem type.
type ProblemClass string

const (
	ClassP          ProblemClass = "P"
	ClassNP         ProblemClass = "NP"
	ClassNPComplete ProblemClass = "NP-Complete"
	ClassNPHard     ProblemClass = "NP-Hard"
	ClassPSPACE     ProblemClass = "PSPACE"
	ClassEXPTIME    ProblemClass = "EXPTIME"
)

// ProofInstance is a problem instance a miner must solve. It is a pure
// deterministic function of (parent_hash, epoch_salt, tier): two nodes with
// the same inputs derive byte-identical instances, so a miner cannot grind
// for a favorable instance.
type ProofInstance struct {
	ProblemType   string `json:"problem_type"`
	ProblemParams []byte `json:"problem_params"` // canonical encoding, problem-type specific
	ProblemSize   int    `json:"problem_size"`
	Tier          Tier   `json:"tier"`
	EpochSalt     Salt   `json:"epoch_salt"`
	ParentHash    Hash   `json:"parent_hash"`
}

// ProofSolution is the result of one mining attempt against a ProofInstance.
type ProofSolution struct {
	SolutionData     []int   `json:"solution_data"` // selected indices
	SolutionHash     Hash    `json:"solution_hash"` // H(canonical(solution_data))
	SolveTimeSeconds float64 `json:"solve_time_seconds"`
	SolveSpaceBytes  uint64  `json:"solve_space_bytes"`
	MinerSalt        Salt    `json:"miner_salt"`
}

// ComplexityMetrics records the measured and theoretical solve/verify
// asymmetry of a solved instance. Attached to a block at mining time and
// re-derivable by any verifier from the problem and solution alone.
type ComplexityMetrics struct {
	SolveBound         string       `json:"solve_bound"`  // informational, e.g. "O(2^(n/2))"
	VerifyBound        string       `json:"verify_bound"` // informational, e.g. "O(n)"
	MeasuredSolveTime  float64      `json:"measured_solve_time"`
	MeasuredVerifyTime float64      `json:"measured_verify_time"`
	ProblemSize        int          `json:"problem_size"`
	SolutionSize       int          `json:"solution_size"`
	AsymmetryTime      float64      `json:"asymmetry_time"` // theoretical_solve_ops / theoretical_verify_ops
	AsymmetrySpace     float64      `json:"asymmetry_space"`
	ProblemClass       ProblemClass `json:"problem_class"`
}

// VerificationResult is returned by a solver's Verify.
type VerificationResult struct {
	IsValid        bool              `json:"is_valid"`
	VerifyTime     float64           `json:"verify_time"`
	VerifySpace    uint64            `json:"verify_space"`
	Complexity     ComplexityMetrics `json:"complexity"`
	AsymmetryRatio float64           `json:"asymmetry_ratio"`
}

// ResourceLimits bounds a single solve or verify attempt.
type ResourceLimits struct {
	MaxSolveSeconds float64 `json:"max_solve_seconds"`
	MaxMemoryBytes  uint64  `json:"max_memory_bytes"`
}

// DefaultLimits returns the limits applied when a caller passes none.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxSolveSeconds: 300,
		MaxMemoryBytes:  1 << 30,
	}
}

// Block is a full block: header fields plus the proof carried in it.
// Blocks are immutable after creation; reorgs move tree pointers, they never
// edit a Block.
type Block struct {
	Index               uint64            `json:"index"`
	Timestamp           float64           `json:"timestamp"` // unix seconds
	PreviousHash        Hash              `json:"previous_hash"`
	MerkleRoot          string            `json:"merkle_root"` // 64 hex chars
	Problem             ProofInstance     `json:"problem"`
	Solution            ProofSolution     `json:"solution"`
	Complexity          ComplexityMetrics `json:"complexity"`
	MiningCapacity      Tier              `json:"mining_capacity"`
	CumulativeWorkScore float64           `json:"cumulative_work_score"`
	BlockHash           Hash              `json:"block_hash"`
	OffchainCID         string            `json:"offchain_cid,omitempty"`
}

// ProofBundle is the off-chain payload stored content-addressed and fetched
// at reveal time.
type ProofBundle struct {
	Instance   ProofInstance `json:"instance"`
	Solution   ProofSolution `json:"solution"`
	Commitment Hash          `json:"commitment"`
}
