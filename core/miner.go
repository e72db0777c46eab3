package core

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// MinedBlock is the message a mining worker emits for every block it
// assembles. Workers never touch engine state directly; the node loop feeds
// these through ValidateHeader and ValidateReveal.
type MinedBlock struct {
	Block      *Block
	Commitment Hash
	MinerSalt  Salt
	Bundle     *ProofBundle
}

// MinerConfig parameterizes a mining worker.
type MinerConfig struct {
	Tier          Tier
	ProblemType   string
	EpochDuration float64
	Limits        ResourceLimits

	// TipPollInterval is how often an in-flight solve checks for a stale
	// parent.
	TipPollInterval time.Duration

	Clock func() time.Time
}

// Miner solves instances for the current best tip off the validation path.
// An attempt is abandoned when the tip advances underneath it or the epoch
// salt rotates; a stale solution is discarded, never submitted.
type Miner struct {
	cfg     MinerConfig
	engine  *Engine
	solver  Solver
	results chan *MinedBlock
	log     *slog.Logger
}

// NewMiner builds a worker mining on engine with the given solver registry.
func NewMiner(cfg MinerConfig, engine *Engine, registry *Registry, log *slog.Logger) (*Miner, error) {
	if cfg.ProblemType == "" {
		cfg.ProblemType = ProblemTypeSubsetSum
	}
	if cfg.EpochDuration <= 0 {
		cfg.EpochDuration = DefaultEpochDuration
	}
	if cfg.Limits == (ResourceLimits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.TipPollInterval <= 0 {
		cfg.TipPollInterval = 250 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if !cfg.Tier.Valid() {
		return nil, fmt.Errorf("invalid miner tier: %d", int(cfg.Tier))
	}
	solver, err := registry.Solver(cfg.ProblemType)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Miner{
		cfg:     cfg,
		engine:  engine,
		solver:  solver,
		results: make(chan *MinedBlock, 4),
		log:     log,
	}, nil
}

// Results is the channel mined blocks are delivered on.
func (m *Miner) Results() <-chan *MinedBlock {
	return m.results
}

// Run mines until ctx is cancelled.
func (m *Miner) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := m.mineOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.log.Debug("mining attempt abandoned", "error", err)
			select {
			case <-time.After(m.cfg.TipPollInterval):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Miner) mineOne(ctx context.Context) error {
	tip := m.engine.BestTipNode()
	parent := tip.Block

	now := unixSeconds(m.cfg.Clock())
	epochSalt := DeriveEpochSalt(parent.BlockHash, now, m.cfg.EpochDuration)

	instance, err := m.solver.Generate(m.cfg.Tier, parent.BlockHash, epochSalt)
	if err != nil {
		return err
	}

	attemptCtx, cancel := context.WithDeadline(ctx, m.epochEnd(now))
	defer cancel()
	go m.watchTip(attemptCtx, cancel, parent.BlockHash)

	solution, err := m.solver.Solve(attemptCtx, instance, m.cfg.Limits)
	if err != nil {
		return err
	}

	// The parent may have advanced or the epoch rotated while we solved;
	// either way the instance is stale and the work is discarded.
	current := m.engine.GetBestTip()
	solvedAt := unixSeconds(m.cfg.Clock())
	if current.BlockHash != parent.BlockHash {
		return fmt.Errorf("tip advanced to %s during solve", current.BlockHash)
	}
	if DeriveEpochSalt(parent.BlockHash, solvedAt, m.cfg.EpochDuration) != epochSalt {
		return fmt.Errorf("epoch rotated during solve")
	}

	result, err := m.solver.Verify(instance, solution, m.cfg.Limits)
	if err != nil {
		return err
	}
	if !result.IsValid {
		return fmt.Errorf("solver produced an invalid solution")
	}

	var minerSalt Salt
	if _, err := rand.Read(minerSalt[:]); err != nil {
		return fmt.Errorf("failed to draw miner salt: %v", err)
	}
	solution.MinerSalt = minerSalt

	commitment := CreateCommitment(instance.ProblemParams, minerSalt, epochSalt, solution.SolutionHash)

	bundle := &ProofBundle{
		Instance:   *instance,
		Solution:   *solution,
		Commitment: commitment,
	}
	bundleBytes, err := CanonicalJSON(bundle)
	if err != nil {
		return err
	}
	cid := HashBytes(bundleBytes).String()

	complexity := result.Complexity
	score := WorkScore(complexity, ExactSolution())

	timestamp := solvedAt
	if timestamp <= parent.Timestamp {
		timestamp = math.Nextafter(parent.Timestamp, math.Inf(1))
	}

	block := &Block{
		Index:               tip.Height + 1,
		Timestamp:           timestamp,
		PreviousHash:        parent.BlockHash,
		MerkleRoot:          MerkleRoot([][]byte{instance.ProblemParams, solution.SolutionHash[:], commitment[:]}),
		Problem:             *instance,
		Solution:            *solution,
		Complexity:          complexity,
		MiningCapacity:      m.cfg.Tier,
		CumulativeWorkScore: tip.CumulativeWork + score,
		OffchainCID:         cid,
	}
	block.BlockHash = ComputeBlockHash(block)

	m.log.Info("block mined",
		"block", block.BlockHash.String(),
		"height", block.Index,
		"problem_size", instance.ProblemSize,
		"solve_time", solution.SolveTimeSeconds,
		"work_score", score)

	select {
	case m.results <- &MinedBlock{Block: block, Commitment: commitment, MinerSalt: minerSalt, Bundle: bundle}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchTip cancels an attempt as soon as the chain advances past its parent.
func (m *Miner) watchTip(ctx context.Context, cancel context.CancelFunc, parentHash Hash) {
	ticker := time.NewTicker(m.cfg.TipPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.engine.GetBestTip().BlockHash != parentHash {
				cancel()
				return
			}
		}
	}
}

func (m *Miner) epochEnd(now float64) time.Time {
	next := (math.Floor(now/m.cfg.EpochDuration) + 1) * m.cfg.EpochDuration
	return time.Unix(0, int64(next*1e9))
}
