package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solvenet/solvenet/core"
)

const testGenesisTimestamp = 1609459200.0

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(unixSeconds float64) *fakeClock {
	return &fakeClock{t: time.Unix(0, int64(unixSeconds*1e9))}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(unixSeconds float64) {
	c.mu.Lock()
	c.t = time.Unix(0, int64(unixSeconds*1e9))
	c.mu.Unlock()
}

type engineFixture struct {
	engine *core.Engine
	store  *core.LevelDBStore
	clock  *fakeClock
	dir    string
}

func newEngineFixture(t *testing.T, mutate func(*core.EngineConfig)) *engineFixture {
	t.Helper()
	return openEngineFixture(t, t.TempDir(), mutate)
}

func openEngineFixture(t *testing.T, dir string, mutate func(*core.EngineConfig)) *engineFixture {
	t.Helper()

	store, err := core.OpenLevelDB(dir + "/chain.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := newFakeClock(testGenesisTimestamp + 1)
	cfg := core.EngineConfig{
		NetworkID:        "test",
		GenesisTimestamp: testGenesisTimestamp,
		GenesisSeed:      "seed",
		CreatorTag:       "tester",
		Clock:            clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := core.NewEngine(cfg, core.NewRegistry(core.NewSubsetSumSolver()), store, nil)
	require.NoError(t, err)
	return &engineFixture{engine: engine, store: store, clock: clock, dir: dir}
}

// craftChild builds a structurally admissible child of parent whose work
// score is steered by solveTime. Fork-choice tests need controlled scores,
// which real solving cannot give.
func craftChild(parent *core.Block, tsOffset, solveTime float64) *core.Block {
	solution := []int{0, 1}
	b := &core.Block{
		Index:        parent.Index + 1,
		Timestamp:    parent.Timestamp + tsOffset,
		PreviousHash: parent.BlockHash,
		MerkleRoot:   core.MerkleRoot([][]byte{[]byte("crafted")}),
		Problem: core.ProofInstance{
			ProblemType:   core.ProblemTypeSubsetSum,
			ProblemParams: []byte(`{"elements":[2,5,9],"target":7}`),
			ProblemSize:   3,
			Tier:          core.Tier1,
			ParentHash:    parent.BlockHash,
		},
		Solution: core.ProofSolution{
			SolutionData:     solution,
			SolutionHash:     core.SolutionHash(solution),
			SolveTimeSeconds: solveTime,
		},
		Complexity: core.ComplexityMetrics{
			MeasuredSolveTime:  solveTime,
			MeasuredVerifyTime: 0.001,
			ProblemSize:        12,
			SolutionSize:       2,
			AsymmetryTime:      64,
			AsymmetrySpace:     64,
			ProblemClass:       core.ClassNPComplete,
		},
		MiningCapacity: core.Tier1,
	}
	b.CumulativeWorkScore = parent.CumulativeWorkScore + core.BlockWorkScore(b)
	b.BlockHash = core.ComputeBlockHash(b)
	return b
}

func headerReason(t *testing.T, err error) core.HeaderReason {
	t.Helper()
	var hve *core.HeaderValidationError
	require.True(t, errors.As(err, &hve), "expected HeaderValidationError, got %v", err)
	return hve.Reason
}

func revealReason(t *testing.T, err error) core.RevealReason {
	t.Helper()
	var rve *core.RevealValidationError
	require.True(t, errors.As(err, &rve), "expected RevealValidationError, got %v", err)
	return rve.Reason
}

func TestGenesisDeterministicAcrossRuns(t *testing.T) {
	a := newEngineFixture(t, nil)
	b := newEngineFixture(t, nil)

	require.Equal(t, a.engine.GenesisHashValue(), b.engine.GenesisHashValue())
	require.Equal(t,
		core.GenesisHash("test", testGenesisTimestamp, "seed", "tester"),
		a.engine.GenesisHashValue())

	ga := a.engine.GetBestTip()
	gb := b.engine.GetBestTip()
	require.Equal(t, ga.BlockHash, gb.BlockHash)
	require.Equal(t, ga.Problem.ProblemParams, gb.Problem.ProblemParams)
	require.Equal(t, uint64(0), ga.Index)
	require.Equal(t, 0.0, ga.CumulativeWorkScore)
}

func TestGenesisSingularAgainstSameStorage(t *testing.T) {
	dir := t.TempDir()

	first := openEngineFixture(t, dir, nil)
	genesis := first.engine.GenesisHashValue()
	require.NoError(t, first.store.Close())

	second := openEngineFixture(t, dir, nil)
	require.Equal(t, genesis, second.engine.GenesisHashValue())
	require.Equal(t, genesis, second.engine.GetBestTip().BlockHash)
}

func TestValidateHeaderAdmitsChain(t *testing.T) {
	fx := newEngineFixture(t, nil)
	genesis := fx.engine.GetBestTip()

	b1 := craftChild(genesis, 60, 1.0)
	b2 := craftChild(b1, 60, 1.0)

	require.NoError(t, fx.engine.ValidateHeader(b1))
	require.NoError(t, fx.engine.ValidateHeader(b2))

	chain := fx.engine.GetChainFromGenesis()
	require.Len(t, chain, 3)
	require.Equal(t, genesis.BlockHash, chain[0].BlockHash)
	require.Equal(t, b2.BlockHash, chain[2].BlockHash)
	require.Equal(t, b2.BlockHash, fx.engine.GetBestTip().BlockHash)

	// Blocks and headers are durable.
	stored, err := fx.store.GetBlock(b2.BlockHash)
	require.NoError(t, err)
	require.Equal(t, b2.BlockHash, stored.BlockHash)
}

func TestValidateHeaderRejections(t *testing.T) {
	fx := newEngineFixture(t, nil)
	genesis := fx.engine.GetBestTip()

	orphan := craftChild(genesis, 60, 1.0)
	orphan.PreviousHash = core.HashBytes([]byte("nowhere"))
	orphan.BlockHash = core.ComputeBlockHash(orphan)
	require.Equal(t, core.ReasonParentUnknown, headerReason(t, fx.engine.ValidateHeader(orphan)))

	badHeight := craftChild(genesis, 60, 1.0)
	badHeight.Index += 3
	badHeight.BlockHash = core.ComputeBlockHash(badHeight)
	require.Equal(t, core.ReasonBadHeight, headerReason(t, fx.engine.ValidateHeader(badHeight)))

	badTime := craftChild(genesis, 60, 1.0)
	badTime.Timestamp = genesis.Timestamp
	badTime.BlockHash = core.ComputeBlockHash(badTime)
	require.Equal(t, core.ReasonBadTimestamp, headerReason(t, fx.engine.ValidateHeader(badTime)))

	noProblem := craftChild(genesis, 60, 1.0)
	noProblem.Problem.ProblemParams = nil
	noProblem.BlockHash = core.ComputeBlockHash(noProblem)
	require.Equal(t, core.ReasonMissingProof, headerReason(t, fx.engine.ValidateHeader(noProblem)))

	noSolution := craftChild(genesis, 60, 1.0)
	noSolution.Solution.SolutionData = nil
	noSolution.BlockHash = core.ComputeBlockHash(noSolution)
	require.Equal(t, core.ReasonMissingProof, headerReason(t, fx.engine.ValidateHeader(noSolution)))

	unboundParent := craftChild(genesis, 60, 1.0)
	unboundParent.Problem.ParentHash = core.HashBytes([]byte("elsewhere"))
	unboundParent.BlockHash = core.ComputeBlockHash(unboundParent)
	require.Equal(t, core.ReasonProblemUnbound, headerReason(t, fx.engine.ValidateHeader(unboundParent)))

	unboundTier := craftChild(genesis, 60, 1.0)
	unboundTier.Problem.Tier = core.Tier2
	unboundTier.BlockHash = core.ComputeBlockHash(unboundTier)
	require.Equal(t, core.ReasonProblemUnbound, headerReason(t, fx.engine.ValidateHeader(unboundTier)))

	badRoot := craftChild(genesis, 60, 1.0)
	badRoot.MerkleRoot = "not-a-root"
	badRoot.BlockHash = core.ComputeBlockHash(badRoot)
	require.Equal(t, core.ReasonBadMerkleRoot, headerReason(t, fx.engine.ValidateHeader(badRoot)))

	tampered := craftChild(genesis, 60, 1.0)
	tampered.Timestamp += 5 // hash no longer covers the header
	require.Equal(t, core.ReasonBadBlockHash, headerReason(t, fx.engine.ValidateHeader(tampered)))

	// A rejected header never corrupts the tree.
	require.Equal(t, genesis.BlockHash, fx.engine.GetBestTip().BlockHash)

	valid := craftChild(genesis, 60, 1.0)
	require.NoError(t, fx.engine.ValidateHeader(valid))
	require.Equal(t, core.ReasonDuplicateBlock, headerReason(t, fx.engine.ValidateHeader(valid)))
}

func TestForkChoiceHighestCumulativeWork(t *testing.T) {
	fx := newEngineFixture(t, nil)
	genesis := fx.engine.GetBestTip()

	// Chain A: two light blocks. Chain B: one light block plus one heavy.
	a1 := craftChild(genesis, 60, 1.0)
	a2 := craftChild(a1, 60, 1.0)
	b1 := craftChild(genesis, 90, 1.0)
	b2 := craftChild(b1, 90, 50.0)

	for _, b := range []*core.Block{a1, a2, b1, b2} {
		require.NoError(t, fx.engine.ValidateHeader(b))
	}

	require.Equal(t, b2.BlockHash, fx.engine.GetBestTip().BlockHash)
	require.Greater(t, b2.CumulativeWorkScore, a2.CumulativeWorkScore)
}

func TestForkChoiceMonotonic(t *testing.T) {
	fx := newEngineFixture(t, nil)
	genesis := fx.engine.GetBestTip()

	blocks := []*core.Block{
		craftChild(genesis, 60, 5.0),
		craftChild(genesis, 61, 1.0),
	}
	blocks = append(blocks, craftChild(blocks[1], 60, 1.0))  // lighter fork grows
	blocks = append(blocks, craftChild(blocks[0], 60, 10.0)) // heavy fork grows

	prev := 0.0
	for _, b := range blocks {
		require.NoError(t, fx.engine.ValidateHeader(b))
		work := fx.engine.BestTipNode().CumulativeWork
		require.GreaterOrEqual(t, work, prev)
		prev = work
	}
	require.Equal(t, blocks[3].BlockHash, fx.engine.GetBestTip().BlockHash)
}

func TestForkChoiceFirstSeenWinsTies(t *testing.T) {
	fx := newEngineFixture(t, nil)
	genesis := fx.engine.GetBestTip()

	// Identical complexity, identical score; only timestamps differ.
	first := craftChild(genesis, 60, 1.0)
	second := craftChild(genesis, 61, 1.0)

	fx.clock.set(testGenesisTimestamp + 100.0)
	require.NoError(t, fx.engine.ValidateHeader(first))

	fx.clock.set(testGenesisTimestamp + 100.5)
	require.NoError(t, fx.engine.ValidateHeader(second))

	require.Equal(t, core.BlockWorkScore(first), core.BlockWorkScore(second))
	require.Equal(t, first.BlockHash, fx.engine.GetBestTip().BlockHash)
}

func TestHeaderRateLimit(t *testing.T) {
	fx := newEngineFixture(t, nil)

	// The clock never advances, so no tokens refill: the 101st header in
	// the same second is turned away.
	garbage := craftChild(fx.engine.GetBestTip(), 60, 1.0)
	garbage.PreviousHash = core.HashBytes([]byte("unknown-parent"))
	garbage.BlockHash = core.ComputeBlockHash(garbage)

	for i := 0; i < core.DefaultMaxHeadersPerSec; i++ {
		require.Equal(t, core.ReasonParentUnknown, headerReason(t, fx.engine.ValidateHeader(garbage)))
	}
	require.Equal(t, core.ReasonRateLimited, headerReason(t, fx.engine.ValidateHeader(garbage)))

	// A second later the window has slid.
	fx.clock.set(testGenesisTimestamp + 3)
	require.Equal(t, core.ReasonParentUnknown, headerReason(t, fx.engine.ValidateHeader(garbage)))
}

func TestHandleReorg(t *testing.T) {
	fx := newEngineFixture(t, nil)
	genesis := fx.engine.GetBestTip()

	a1 := craftChild(genesis, 60, 2.0)
	a2 := craftChild(a1, 60, 2.0)
	a3 := craftChild(a2, 60, 2.0)
	b1 := craftChild(genesis, 90, 1.0)

	for _, b := range []*core.Block{a1, a2, a3, b1} {
		require.NoError(t, fx.engine.ValidateHeader(b))
	}
	require.Equal(t, a3.BlockHash, fx.engine.GetBestTip().BlockHash)

	removed, added, err := fx.engine.HandleReorg(b1.BlockHash)
	require.NoError(t, err)
	require.Len(t, removed, 3)
	require.Len(t, added, 1)
	require.Equal(t, a1.BlockHash, removed[0].BlockHash)
	require.Equal(t, a3.BlockHash, removed[2].BlockHash)
	require.Equal(t, b1.BlockHash, added[0].BlockHash)
	require.Equal(t, b1.BlockHash, fx.engine.GetBestTip().BlockHash)

	// Reorg to the current tip is a no-op.
	removed, added, err = fx.engine.HandleReorg(b1.BlockHash)
	require.NoError(t, err)
	require.Empty(t, removed)
	require.Empty(t, added)

	// Unknown candidate is an error.
	_, _, err = fx.engine.HandleReorg(core.HashBytes([]byte("phantom")))
	require.Error(t, err)
}

func TestHandleReorgDepthBound(t *testing.T) {
	fx := newEngineFixture(t, func(cfg *core.EngineConfig) {
		cfg.MaxReorgDepth = 2
	})
	genesis := fx.engine.GetBestTip()

	a1 := craftChild(genesis, 60, 2.0)
	a2 := craftChild(a1, 60, 2.0)
	a3 := craftChild(a2, 60, 2.0)
	b1 := craftChild(genesis, 90, 1.0)

	for _, b := range []*core.Block{a1, a2, a3, b1} {
		require.NoError(t, fx.engine.ValidateHeader(b))
	}

	// Unwinding three blocks exceeds the bound: defined no-op, tip intact.
	removed, added, err := fx.engine.HandleReorg(b1.BlockHash)
	require.NoError(t, err)
	require.Empty(t, removed)
	require.Empty(t, added)
	require.Equal(t, a3.BlockHash, fx.engine.GetBestTip().BlockHash)
}

func TestFinality(t *testing.T) {
	fx := newEngineFixture(t, func(cfg *core.EngineConfig) {
		cfg.ConfirmationDepth = 2
	})
	genesis := fx.engine.GetBestTip()

	c1 := craftChild(genesis, 60, 1.0)
	c2 := craftChild(c1, 60, 1.0)
	c3 := craftChild(c2, 60, 1.0)
	side := craftChild(genesis, 90, 0.5)

	for _, b := range []*core.Block{c1, c2, c3, side} {
		require.NoError(t, fx.engine.ValidateHeader(b))
	}

	require.True(t, fx.engine.IsFinalized(genesis.BlockHash))
	require.True(t, fx.engine.IsFinalized(c1.BlockHash))
	require.False(t, fx.engine.IsFinalized(c2.BlockHash))
	require.False(t, fx.engine.IsFinalized(c3.BlockHash))

	// Deep enough, but not on the best chain.
	require.False(t, fx.engine.IsFinalized(side.BlockHash))
	require.False(t, fx.engine.IsFinalized(core.HashBytes([]byte("unknown"))))
}

// mineChild performs a real mining round against the engine's tip, the way
// the miner assembles blocks.
func mineChild(t *testing.T, fx *engineFixture) (*core.Block, core.Hash, core.Salt, *core.ProofBundle) {
	t.Helper()
	solver := core.NewSubsetSumSolver()

	parent := fx.engine.GetBestTip()
	ts := parent.Timestamp + 60
	epochSalt := core.DeriveEpochSalt(parent.BlockHash, ts, core.DefaultEpochDuration)

	instance, err := solver.Generate(core.Tier1, parent.BlockHash, epochSalt)
	require.NoError(t, err)
	solution, err := solver.Solve(context.Background(), instance, core.DefaultLimits())
	require.NoError(t, err)
	result, err := solver.Verify(instance, solution, core.DefaultLimits())
	require.NoError(t, err)
	require.True(t, result.IsValid)

	var minerSalt core.Salt
	copy(minerSalt[:], []byte("deterministic-miner-salt-for-tests"))
	solution.MinerSalt = minerSalt

	commitment := core.CreateCommitment(instance.ProblemParams, minerSalt, epochSalt, solution.SolutionHash)
	bundle := &core.ProofBundle{Instance: *instance, Solution: *solution, Commitment: commitment}
	bundleBytes, err := core.CanonicalJSON(bundle)
	require.NoError(t, err)

	block := &core.Block{
		Index:               parent.Index + 1,
		Timestamp:           ts,
		PreviousHash:        parent.BlockHash,
		MerkleRoot:          core.MerkleRoot([][]byte{instance.ProblemParams, solution.SolutionHash[:], commitment[:]}),
		Problem:             *instance,
		Solution:            *solution,
		Complexity:          result.Complexity,
		MiningCapacity:      core.Tier1,
		CumulativeWorkScore: parent.CumulativeWorkScore + core.WorkScore(result.Complexity, core.ExactSolution()),
		OffchainCID:         core.HashBytes(bundleBytes).String(),
	}
	block.BlockHash = core.ComputeBlockHash(block)
	return block, commitment, minerSalt, bundle
}

func TestValidateRevealEndToEnd(t *testing.T) {
	fx := newEngineFixture(t, nil)

	block, commitment, minerSalt, bundle := mineChild(t, fx)
	require.NoError(t, fx.engine.ValidateHeader(block))
	require.NoError(t, fx.engine.ValidateReveal(block.BlockHash, commitment, minerSalt, bundle))

	// The commit-index records the bundle's address.
	cid, err := fx.store.GetCommitmentCID(commitment)
	require.NoError(t, err)
	require.Equal(t, block.OffchainCID, cid)

	// Revealing again with the bundle fetched by CID also passes.
	require.NoError(t, fx.engine.ValidateReveal(block.BlockHash, commitment, minerSalt, nil))
}

func TestValidateRevealRejections(t *testing.T) {
	fx := newEngineFixture(t, nil)

	block, commitment, minerSalt, bundle := mineChild(t, fx)
	require.NoError(t, fx.engine.ValidateHeader(block))

	// Unknown header.
	err := fx.engine.ValidateReveal(core.HashBytes([]byte("ghost")), commitment, minerSalt, bundle)
	require.Equal(t, core.ReasonRevealParent, revealReason(t, err))

	// No bundle supplied and nothing stored under the block's CID yet.
	err = fx.engine.ValidateReveal(block.BlockHash, commitment, minerSalt, nil)
	require.Equal(t, core.ReasonBundleUnfetchable, revealReason(t, err))

	// Wrong miner salt: the commitment does not open.
	var wrongSalt core.Salt
	wrongSalt[0] = 0x99
	err = fx.engine.ValidateReveal(block.BlockHash, commitment, wrongSalt, bundle)
	require.Equal(t, core.ReasonCommitmentMismatch, revealReason(t, err))

	// Wrong commitment.
	err = fx.engine.ValidateReveal(block.BlockHash, core.HashBytes([]byte("forged")), minerSalt, bundle)
	require.Equal(t, core.ReasonCommitmentMismatch, revealReason(t, err))

	// A failed reveal leaves the header in the tree but blocks finality
	// forever, even once buried.
	require.Equal(t, block.BlockHash, fx.engine.GetBestTip().BlockHash)
	fxDeep := block
	for i := 0; i < int(core.DefaultConfirmationDepth)+1; i++ {
		fxDeep = craftChild(fxDeep, 60, 1.0)
		require.NoError(t, fx.engine.ValidateHeader(fxDeep))
	}
	require.False(t, fx.engine.IsFinalized(block.BlockHash))
}

func TestValidateRevealRejectsForeignInstance(t *testing.T) {
	fx := newEngineFixture(t, nil)
	genesis := fx.engine.GetBestTip()

	// A miner-chosen instance, trivially solvable, carrying an honestly
	// derived epoch salt, a huge claimed solve time, and a commitment that
	// opens over the substituted params.
	ts := genesis.Timestamp + 60
	epochSalt := core.DeriveEpochSalt(genesis.BlockHash, ts, core.DefaultEpochDuration)
	params := []byte(`{"elements":[2,5,9],"target":7}`)
	solution := []int{0, 1}
	solutionHash := core.SolutionHash(solution)

	var minerSalt core.Salt
	copy(minerSalt[:], []byte("instance-grinder"))
	commitment := core.CreateCommitment(params, minerSalt, epochSalt, solutionHash)

	block := &core.Block{
		Index:        1,
		Timestamp:    ts,
		PreviousHash: genesis.BlockHash,
		MerkleRoot:   core.MerkleRoot([][]byte{params, solutionHash[:], commitment[:]}),
		Problem: core.ProofInstance{
			ProblemType:   core.ProblemTypeSubsetSum,
			ProblemParams: params,
			ProblemSize:   3,
			Tier:          core.Tier1,
			EpochSalt:     epochSalt,
			ParentHash:    genesis.BlockHash,
		},
		Solution: core.ProofSolution{
			SolutionData:     solution,
			SolutionHash:     solutionHash,
			SolveTimeSeconds: 999,
			MinerSalt:        minerSalt,
		},
		Complexity: core.ComplexityMetrics{
			MeasuredSolveTime:  999,
			MeasuredVerifyTime: 0.001,
			ProblemSize:        3,
			SolutionSize:       2,
			AsymmetryTime:      1 << 20,
			AsymmetrySpace:     1 << 20,
			ProblemClass:       core.ClassNPComplete,
		},
		MiningCapacity: core.Tier1,
	}
	block.CumulativeWorkScore = core.BlockWorkScore(block)
	block.BlockHash = core.ComputeBlockHash(block)

	// The header alone cannot expose the substitution.
	require.NoError(t, fx.engine.ValidateHeader(block))

	bundle := &core.ProofBundle{Instance: block.Problem, Solution: block.Solution, Commitment: commitment}
	err := fx.engine.ValidateReveal(block.BlockHash, commitment, minerSalt, bundle)
	require.Equal(t, core.ReasonInstanceMismatch, revealReason(t, err))

	// Once the substitution is caught the block can never finalize, however
	// deep it gets buried.
	tip := block
	for i := 0; i < int(core.DefaultConfirmationDepth)+1; i++ {
		tip = craftChild(tip, 60, 1.0)
		require.NoError(t, fx.engine.ValidateHeader(tip))
	}
	require.False(t, fx.engine.IsFinalized(block.BlockHash))
}

func TestEngineReloadsPersistedChains(t *testing.T) {
	dir := t.TempDir()

	first := openEngineFixture(t, dir, nil)
	genesis := first.engine.GetBestTip()
	b1 := craftChild(genesis, 60, 1.0)
	b2 := craftChild(b1, 60, 1.0)
	require.NoError(t, first.engine.ValidateHeader(b1))
	require.NoError(t, first.engine.ValidateHeader(b2))
	require.NoError(t, first.store.Close())

	second := openEngineFixture(t, dir, nil)
	require.Equal(t, b2.BlockHash, second.engine.GetBestTip().BlockHash)
	require.Len(t, second.engine.GetChainFromGenesis(), 3)
}

type staticGenesisFetcher struct {
	genesis *core.Block
	err     error
}

func (f *staticGenesisFetcher) FetchGenesis(networkID string) (*core.Block, error) {
	return f.genesis, f.err
}

func TestGenesisFetchedFromNetwork(t *testing.T) {
	// A node that already bootstrapped serves its genesis to a fresh one.
	seeder := newEngineFixture(t, nil)
	remoteGenesis := seeder.engine.GetBestTip()

	store, err := core.OpenLevelDB(t.TempDir() + "/chain.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := newFakeClock(testGenesisTimestamp + 1)
	engine, err := core.NewEngine(core.EngineConfig{
		NetworkID:        "test",
		GenesisTimestamp: testGenesisTimestamp,
		GenesisSeed:      "seed",
		CreatorTag:       "tester",
		Clock:            clock.Now,
	}, core.NewRegistry(core.NewSubsetSumSolver()), store, nil,
		core.WithGenesisFetcher(&staticGenesisFetcher{genesis: remoteGenesis}))
	require.NoError(t, err)
	require.Equal(t, remoteGenesis.BlockHash, engine.GetBestTip().BlockHash)

	// A remote genesis for a different network is fatal.
	alien := *remoteGenesis
	alien.BlockHash = core.HashBytes([]byte("alien"))
	store2, err := core.OpenLevelDB(t.TempDir() + "/chain.db")
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })

	_, err = core.NewEngine(core.EngineConfig{
		NetworkID:        "test",
		GenesisTimestamp: testGenesisTimestamp,
		GenesisSeed:      "seed",
		CreatorTag:       "tester",
		Clock:            clock.Now,
	}, core.NewRegistry(core.NewSubsetSumSolver()), store2, nil,
		core.WithGenesisFetcher(&staticGenesisFetcher{genesis: &alien}))
	require.ErrorIs(t, err, core.ErrNoGenesis)
}
