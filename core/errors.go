package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSolveTimeout is returned when a solve attempt exceeds its time budget.
	ErrSolveTimeout = errors.New("solve timed out")

	// ErrTierLimit is returned when an instance exceeds the resource budget
	// of the requesting tier.
	ErrTierLimit = errors.New("tier resource limit exceeded")

	// ErrUnknownProblemType is returned when no solver is registered for a
	// problem type.
	ErrUnknownProblemType = errors.New("unknown problem type")

	// ErrNoGenesis is returned when the engine cannot load or construct a
	// genesis block. Fatal to node startup.
	ErrNoGenesis = errors.New("genesis construction failed")
)

// HeaderReason classifies why a header was rejected.
type HeaderReason string

const (
	ReasonParentUnknown  HeaderReason = "parent_unknown"
	ReasonBadHeight      HeaderReason = "bad_height"
	ReasonBadTimestamp   HeaderReason = "bad_timestamp"
	ReasonRateLimited    HeaderReason = "rate_limited"
	ReasonMissingProof   HeaderReason = "missing_proof"
	ReasonProblemUnbound HeaderReason = "problem_unbound"
	ReasonBadMerkleRoot  HeaderReason = "bad_merkle_root"
	ReasonZeroWork       HeaderReason = "zero_work"
	ReasonBadBlockHash   HeaderReason = "bad_block_hash"
	ReasonDuplicateBlock HeaderReason = "duplicate_block"
)

// HeaderValidationError rejects a single header. It is always fatal to that
// header and never to the engine: the tree and other peers' blocks are
// untouched.
type HeaderValidationError struct {
	Reason HeaderReason
	Block  Hash
	Detail string
}

func (e *HeaderValidationError) Error() string {
	return fmt.Sprintf("header %s rejected (%s): %s", e.Block, e.Reason, e.Detail)
}

func headerErr(reason HeaderReason, block Hash, format string, args ...interface{}) error {
	return &HeaderValidationError{Reason: reason, Block: block, Detail: fmt.Sprintf(format, args...)}
}

// RevealReason classifies why a reveal was rejected.
type RevealReason string

const (
	ReasonBundleUnfetchable  RevealReason = "bundle_unfetchable"
	ReasonCommitmentMismatch RevealReason = "commitment_mismatch"
	ReasonInstanceMismatch   RevealReason = "instance_mismatch"
	ReasonSolverRejected     RevealReason = "solver_rejected"
	ReasonRevealParent       RevealReason = "parent_unknown"
)

// RevealValidationError rejects a single reveal; the header it belongs to
// stays in the tree but is never finalized.
type RevealValidationError struct {
	Reason RevealReason
	Block  Hash
	Detail string
}

func (e *RevealValidationError) Error() string {
	return fmt.Sprintf("reveal for %s rejected (%s): %s", e.Block, e.Reason, e.Detail)
}

func revealErr(reason RevealReason, block Hash, format string, args ...interface{}) error {
	return &RevealValidationError{Reason: reason, Block: block, Detail: fmt.Sprintf(format, args...)}
}
