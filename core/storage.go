package core

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Header is the persisted header row: the block's chain position without its
// proof payload.
type Header struct {
	Index               uint64  `json:"index"`
	Timestamp           float64 `json:"timestamp"`
	PreviousHash        Hash    `json:"previous_hash"`
	MerkleRoot          string  `json:"merkle_root"`
	MiningCapacity      Tier    `json:"mining_capacity"`
	CumulativeWorkScore float64 `json:"cumulative_work_score"`
	BlockHash           Hash    `json:"block_hash"`
}

// HeaderOf extracts the persisted header from a block.
func HeaderOf(b *Block) Header {
	return Header{
		Index:               b.Index,
		Timestamp:           b.Timestamp,
		PreviousHash:        b.PreviousHash,
		MerkleRoot:          b.MerkleRoot,
		MiningCapacity:      b.MiningCapacity,
		CumulativeWorkScore: b.CumulativeWorkScore,
		BlockHash:           b.BlockHash,
	}
}

// Storage is the durable KV collaborator of the consensus engine. Every
// operation is idempotent and per-key durable; the engine never assumes
// cross-key transactions. The commit-index and work-index are
// write-once-per-key.
type Storage interface {
	StoreHeader(h Header) error
	GetHeader(blockHash Hash) (Header, error)

	StoreBlock(b *Block) error
	GetBlock(blockHash Hash) (*Block, error)

	StoreTip(tip Hash) error
	GetTips() ([]Hash, error)

	StoreWorkIndex(height uint64, cumulativeWork float64) error
	GetWorkAtHeight(height uint64) (float64, error)

	StoreCommitment(commitment Hash, cid string) error
	GetCommitmentCID(commitment Hash) (string, error)

	// StoreProofBundle persists the bundle content-addressed and returns its
	// CID (the hex digest of the canonical bundle bytes).
	StoreProofBundle(bundle *ProofBundle) (string, error)
	GetProofBundle(cid string) (*ProofBundle, error)

	Close() error
}

// ErrNotFound is returned by Get* methods for missing keys.
var ErrNotFound = errors.ErrNotFound

// LevelDBStore implements Storage on LevelDB with prefixed string keys and
// JSON values.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %v", key, err)
	}
	// Idempotent write-once: an existing identical value is a no-op and a
	// rewrite with the same key is harmless because every keyed value is
	// immutable once produced.
	if err := s.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("failed to store %s: %v", key, err)
	}
	return nil
}

func (s *LevelDBStore) get(key string, v interface{}) error {
	data, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %v", key, err)
	}
	return nil
}

// StoreHeader implements Storage.
func (s *LevelDBStore) StoreHeader(h Header) error {
	return s.put("header:"+h.BlockHash.String(), h)
}

// GetHeader implements Storage.
func (s *LevelDBStore) GetHeader(blockHash Hash) (Header, error) {
	var h Header
	err := s.get("header:"+blockHash.String(), &h)
	return h, err
}

// StoreBlock implements Storage.
func (s *LevelDBStore) StoreBlock(b *Block) error {
	return s.put("block:"+b.BlockHash.String(), b)
}

// GetBlock implements Storage.
func (s *LevelDBStore) GetBlock(blockHash Hash) (*Block, error) {
	var b Block
	if err := s.get("block:"+blockHash.String(), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// StoreTip implements Storage.
func (s *LevelDBStore) StoreTip(tip Hash) error {
	return s.put("tip:"+tip.String(), tip)
}

// GetTips implements Storage.
func (s *LevelDBStore) GetTips() ([]Hash, error) {
	var tips []Hash
	iter := s.db.NewIterator(util.BytesPrefix([]byte("tip:")), nil)
	defer iter.Release()
	for iter.Next() {
		var h Hash
		if err := json.Unmarshal(iter.Value(), &h); err != nil {
			continue
		}
		tips = append(tips, h)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %v", err)
	}
	return tips, nil
}

// StoreWorkIndex implements Storage.
func (s *LevelDBStore) StoreWorkIndex(height uint64, cumulativeWork float64) error {
	return s.put(fmt.Sprintf("work:%020d", height), cumulativeWork)
}

// GetWorkAtHeight implements Storage.
func (s *LevelDBStore) GetWorkAtHeight(height uint64) (float64, error) {
	var work float64
	err := s.get(fmt.Sprintf("work:%020d", height), &work)
	return work, err
}

// StoreCommitment implements Storage.
func (s *LevelDBStore) StoreCommitment(commitment Hash, cid string) error {
	return s.put("commit:"+commitment.String(), cid)
}

// GetCommitmentCID implements Storage.
func (s *LevelDBStore) GetCommitmentCID(commitment Hash) (string, error) {
	var cid string
	err := s.get("commit:"+commitment.String(), &cid)
	return cid, err
}

// StoreProofBundle implements Storage.
func (s *LevelDBStore) StoreProofBundle(bundle *ProofBundle) (string, error) {
	data, err := CanonicalJSON(bundle)
	if err != nil {
		return "", err
	}
	cid := HashBytes(data).String()
	if err := s.put("bundle:"+cid, bundle); err != nil {
		return "", err
	}
	return cid, nil
}

// GetProofBundle implements Storage.
func (s *LevelDBStore) GetProofBundle(cid string) (*ProofBundle, error) {
	var bundle ProofBundle
	if err := s.get("bundle:"+cid, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}
