package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// CanonicalJSON encodes v deterministically. Struct fields marshal in
// declaration order and map keys sort, so the same value always produces the
// same bytes. Every hash in the protocol is computed over this encoding;
// a node that encodes differently forks itself off the network.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %v", err)
	}
	return data, nil
}

// HashBytes returns the SHA-256 digest of data.
func HashBytes(data []byte) Hash {
	return sha256.Sum256(data)
}

// SolutionHash hashes the canonical encoding of the selected indices.
func SolutionHash(solutionData []int) Hash {
	if solutionData == nil {
		solutionData = []int{}
	}
	data, _ := json.Marshal(solutionData)
	return sha256.Sum256(data)
}

// blockHashFields fixes the header field order hashed into a block hash.
// The order (index, timestamp, previous_hash, merkle_root, problem, solution,
// mining_capacity, cumulative_work_score) is consensus: changing it forks
// every stored hash.
type blockHashFields struct {
	Index               uint64        `json:"index"`
	Timestamp           float64       `json:"timestamp"`
	PreviousHash        Hash          `json:"previous_hash"`
	MerkleRoot          string        `json:"merkle_root"`
	Problem             ProofInstance `json:"problem"`
	Solution            ProofSolution `json:"solution"`
	MiningCapacity      Tier          `json:"mining_capacity"`
	CumulativeWorkScore float64       `json:"cumulative_work_score"`
}

// ComputeBlockHash calculates the block hash over every field except the
// hash itself.
func ComputeBlockHash(b *Block) Hash {
	data, _ := json.Marshal(blockHashFields{
		Index:               b.Index,
		Timestamp:           b.Timestamp,
		PreviousHash:        b.PreviousHash,
		MerkleRoot:          b.MerkleRoot,
		Problem:             b.Problem,
		Solution:            b.Solution,
		MiningCapacity:      b.MiningCapacity,
		CumulativeWorkScore: b.CumulativeWorkScore,
	})
	return sha256.Sum256(data)
}

// MerkleRoot computes the 64-hex-char root over the given items.
//
// The form is a flat SHA-256 over the concatenation of the per-item hashes,
// not a balanced binary tree. It carries no inclusion proofs; kept flat for
// hash compatibility with existing chains. A balanced tree is a protocol
// version bump.
func MerkleRoot(items [][]byte) string {
	if len(items) == 0 {
		empty := sha256.Sum256(nil)
		return Hash(empty).String()
	}
	concat := make([]byte, 0, len(items)*32)
	for _, item := range items {
		h := sha256.Sum256(item)
		concat = append(concat, h[:]...)
	}
	root := sha256.Sum256(concat)
	return Hash(root).String()
}

// ValidMerkleRoot reports whether s is a well-formed 256-bit hex digest.
func ValidMerkleRoot(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
