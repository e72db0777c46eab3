package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"math"
)

// DefaultEpochDuration is the width of the epoch-salt time bucket in seconds.
// Hour granularity: a miner who stalls on an instance has the salt rotate
// out from under them.
const DefaultEpochDuration = 3600.0

// DeriveEpochSalt derives the epoch salt for a block built on parentHash at
// the given unix timestamp: H(parent_hash || floor(timestamp/epochDuration)).
// The instance a miner must solve is fixed by (parent_hash, epoch_salt), so
// there is nothing left to grind.
func DeriveEpochSalt(parentHash Hash, timestamp, epochDuration float64) Salt {
	if epochDuration <= 0 {
		epochDuration = DefaultEpochDuration
	}
	epoch := uint64(math.Floor(timestamp / epochDuration))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], epoch)

	h := sha256.New()
	h.Write(parentHash[:])
	h.Write(buf[:])

	var salt Salt
	copy(salt[:], h.Sum(nil))
	return salt
}

// CreateCommitment binds a miner to a specific solution before reveal:
// H(problem_params || miner_salt || epoch_salt || solution_hash).
// It cannot be produced without the exact solution hash, and it reveals
// nothing about the solution until the miner opens it.
func CreateCommitment(problemParams []byte, minerSalt, epochSalt Salt, solutionHash Hash) Hash {
	h := sha256.New()
	h.Write(problemParams)
	h.Write(minerSalt[:])
	h.Write(epochSalt[:])
	h.Write(solutionHash[:])

	var c Hash
	copy(c[:], h.Sum(nil))
	return c
}

// VerifyCommitment recomputes the commitment and compares byte-for-byte.
// Any mismatch is a hard rejection, never a retry.
func VerifyCommitment(commitment Hash, problemParams []byte, minerSalt, epochSalt Salt, solutionHash Hash) bool {
	expected := CreateCommitment(problemParams, minerSalt, epochSalt, solutionHash)
	return subtle.ConstantTimeCompare(commitment[:], expected[:]) == 1
}
