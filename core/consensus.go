package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Engine defaults.
const (
	DefaultConfirmationDepth = 20
	DefaultMaxReorgDepth     = 100
	DefaultMaxHeadersPerSec  = 100
)

// BlockNode is an entry in the engine's in-memory block tree. Nodes live in
// a flat arena indexed by dense ids; parent and child relations are arena
// indices, so there are no reference cycles and ancestor walks are O(1) per
// step. Height and CumulativeWork are computed once from the parent and
// never mutated.
type BlockNode struct {
	Block          *Block
	ParentHash     Hash
	CumulativeWork float64
	Height         uint64
	ReceiptTime    float64 // unix seconds, first-seen

	parent   int // arena index, -1 for genesis
	children []int

	// revealFailed marks a header whose reveal was rejected. The header
	// stays in the tree but can never finalize; it is reorged out when a
	// competing valid chain overtakes it.
	revealFailed bool
	revealValid  bool
}

// EngineConfig parameterizes a consensus engine.
type EngineConfig struct {
	NetworkID        string
	GenesisTimestamp float64
	GenesisSeed      string
	CreatorTag       string

	EpochDuration     float64 // seconds; DefaultEpochDuration when zero
	ConfirmationDepth uint64  // DefaultConfirmationDepth when zero
	MaxReorgDepth     int     // DefaultMaxReorgDepth when zero
	MaxHeadersPerSec  int     // DefaultMaxHeadersPerSec when zero

	// EnforceTarget turns on the full difficulty comparison during header
	// validation. Off by default: admission requires a positive work score
	// and the per-tier target steers miners.
	EnforceTarget bool

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

func (c *EngineConfig) applyDefaults() {
	if c.EpochDuration <= 0 {
		c.EpochDuration = DefaultEpochDuration
	}
	if c.ConfirmationDepth == 0 {
		c.ConfirmationDepth = DefaultConfirmationDepth
	}
	if c.MaxReorgDepth == 0 {
		c.MaxReorgDepth = DefaultMaxReorgDepth
	}
	if c.MaxHeadersPerSec == 0 {
		c.MaxHeadersPerSec = DefaultMaxHeadersPerSec
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Announcer receives fire-and-forget gossip notifications. No ack contract;
// implementations must not block.
type Announcer interface {
	AnnounceHeader(b *Block)
	AnnounceReveal(blockHash Hash, cid string)
}

// GenesisFetcher fetches an existing canonical genesis from the network
// during bootstrap. Optional.
type GenesisFetcher interface {
	FetchGenesis(networkID string) (*Block, error)
}

// Engine is the consensus core: it owns the block tree, decides the best
// tip, validates headers and reveals, and applies bounded reorgs. All tree
// mutation is serialized behind one exclusive lock; the network layer and
// the local miner both call into it concurrently.
type Engine struct {
	mu sync.Mutex

	cfg      EngineConfig
	registry *Registry
	store    Storage
	adjuster *Adjuster
	metrics  *Metrics
	announce Announcer
	log      *slog.Logger

	nodes   []*BlockNode
	byHash  map[Hash]int
	bestTip int

	genesisHash Hash
	limiter     *rate.Limiter
}

// NewEngine builds an engine and bootstraps genesis: load from storage if
// present, fetch from the network if a fetcher is supplied, otherwise
// generate locally. Exactly one genesis exists per network id; bootstrap
// failure is fatal to node startup.
func NewEngine(cfg EngineConfig, registry *Registry, store Storage, adjuster *Adjuster, opts ...EngineOption) (*Engine, error) {
	cfg.applyDefaults()

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		store:    store,
		adjuster: adjuster,
		log:      slog.Default(),
		byHash:   make(map[Hash]int),
		bestTip:  -1,
		limiter:  rate.NewLimiter(rate.Limit(cfg.MaxHeadersPerSec), cfg.MaxHeadersPerSec),
	}
	var fetcher GenesisFetcher
	for _, opt := range opts {
		fetcher = opt(e, fetcher)
	}

	e.genesisHash = GenesisHash(cfg.NetworkID, cfg.GenesisTimestamp, cfg.GenesisSeed, cfg.CreatorTag)

	genesis, err := e.bootstrapGenesis(fetcher)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGenesis, err)
	}
	e.addGenesisNode(genesis)

	if err := e.loadPersistedChains(); err != nil {
		return nil, err
	}

	e.log.Info("consensus engine ready",
		"network", cfg.NetworkID,
		"genesis", e.genesisHash.String(),
		"height", e.nodes[e.bestTip].Height)
	return e, nil
}

// EngineOption configures optional engine collaborators.
type EngineOption func(e *Engine, f GenesisFetcher) GenesisFetcher

// WithAnnouncer sets the gossip announcer.
func WithAnnouncer(a Announcer) EngineOption {
	return func(e *Engine, f GenesisFetcher) GenesisFetcher {
		e.announce = a
		return f
	}
}

// WithMetrics sets the prometheus instrumentation.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine, f GenesisFetcher) GenesisFetcher {
		e.metrics = m
		return f
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine, f GenesisFetcher) GenesisFetcher {
		e.log = l
		return f
	}
}

// WithGenesisFetcher sets the network genesis source used during bootstrap.
func WithGenesisFetcher(fetcher GenesisFetcher) EngineOption {
	return func(e *Engine, f GenesisFetcher) GenesisFetcher {
		return fetcher
	}
}

// GenesisHash derives the deterministic genesis hash for a network:
// H(network_id || genesis_timestamp || genesis_seed || creator_tag).
func GenesisHash(networkID string, genesisTimestamp float64, genesisSeed, creatorTag string) Hash {
	h := sha256.New()
	h.Write([]byte(networkID))
	h.Write([]byte(strconv.FormatFloat(genesisTimestamp, 'f', -1, 64)))
	h.Write([]byte(genesisSeed))
	h.Write([]byte(creatorTag))
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (e *Engine) bootstrapGenesis(fetcher GenesisFetcher) (*Block, error) {
	if stored, err := e.store.GetBlock(e.genesisHash); err == nil {
		return stored, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if fetcher != nil {
		remote, err := fetcher.FetchGenesis(e.cfg.NetworkID)
		if err == nil && remote != nil {
			if remote.BlockHash != e.genesisHash {
				return nil, fmt.Errorf("remote genesis %s does not match network %q", remote.BlockHash, e.cfg.NetworkID)
			}
			if err := e.persistBlock(remote); err != nil {
				return nil, err
			}
			return remote, nil
		}
		e.log.Warn("network genesis fetch failed, generating locally", "error", err)
	}

	genesis, err := e.generateGenesis()
	if err != nil {
		return nil, err
	}
	if err := e.persistBlock(genesis); err != nil {
		return nil, err
	}
	return genesis, nil
}

// generateGenesis mines the genesis block locally from the deterministic
// seed material. Cumulative work starts at zero; the genesis block hash is
// the network's deterministic genesis hash rather than the canonical field
// hash, so two independent bootstraps agree byte-for-byte.
func (e *Engine) generateGenesis() (*Block, error) {
	solver, err := e.registry.Solver(ProblemTypeSubsetSum)
	if err != nil {
		return nil, err
	}

	var parent Hash // zero: genesis has no parent
	epochSalt := DeriveEpochSalt(parent, e.cfg.GenesisTimestamp, e.cfg.EpochDuration)

	instance, err := solver.Generate(Tier1, parent, epochSalt)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	solution, err := solver.Solve(ctx, instance, DefaultLimits())
	if err != nil {
		return nil, err
	}
	result, err := solver.Verify(instance, solution, DefaultLimits())
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		return nil, fmt.Errorf("generated genesis solution failed verification")
	}

	genesis := &Block{
		Index:               0,
		Timestamp:           e.cfg.GenesisTimestamp,
		PreviousHash:        Hash{},
		MerkleRoot:          MerkleRoot([][]byte{instance.ProblemParams, solution.SolutionHash[:]}),
		Problem:             *instance,
		Solution:            *solution,
		Complexity:          result.Complexity,
		MiningCapacity:      Tier1,
		CumulativeWorkScore: 0,
		BlockHash:           e.genesisHash,
	}
	return genesis, nil
}

func (e *Engine) persistBlock(b *Block) error {
	if err := e.store.StoreBlock(b); err != nil {
		return err
	}
	if err := e.store.StoreHeader(HeaderOf(b)); err != nil {
		return err
	}
	return e.store.StoreWorkIndex(b.Index, b.CumulativeWorkScore)
}

func (e *Engine) addGenesisNode(genesis *Block) {
	node := &BlockNode{
		Block:          genesis,
		ParentHash:     genesis.PreviousHash,
		CumulativeWork: 0,
		Height:         0,
		ReceiptTime:    e.cfg.GenesisTimestamp,
		parent:         -1,
		revealValid:    true,
	}
	e.nodes = append(e.nodes, node)
	e.byHash[genesis.BlockHash] = 0
	e.bestTip = 0
}

// loadPersistedChains re-admits blocks reachable from stored tips so a
// restarted node resumes with its tree intact.
func (e *Engine) loadPersistedChains() error {
	tips, err := e.store.GetTips()
	if err != nil {
		return err
	}
	for _, tip := range tips {
		var pending []*Block
		cursor := tip
		for {
			if _, known := e.byHash[cursor]; known {
				break
			}
			b, err := e.store.GetBlock(cursor)
			if errors.Is(err, ErrNotFound) {
				pending = nil // chain does not connect; skip this tip
				break
			}
			if err != nil {
				return err
			}
			pending = append(pending, b)
			cursor = b.PreviousHash
		}
		for i := len(pending) - 1; i >= 0; i-- {
			e.mu.Lock()
			_, err := e.admitLocked(pending[i], false)
			e.mu.Unlock()
			if err != nil {
				e.log.Warn("dropping unloadable stored block", "block", pending[i].BlockHash.String(), "error", err)
				break
			}
		}
	}
	return nil
}

// GenesisHashValue returns the engine's genesis hash.
func (e *Engine) GenesisHashValue() Hash {
	return e.genesisHash
}

// ValidateHeader runs the admission pipeline on a received block header and,
// on success, adds it to the tree and updates fork choice. Any failure
// returns a HeaderValidationError; the engine never partially admits a
// block.
func (e *Engine) ValidateHeader(b *Block) error {
	e.mu.Lock()
	admitted, err := e.admitLocked(b, true)
	e.mu.Unlock()

	if err != nil {
		var hve *HeaderValidationError
		if errors.As(err, &hve) {
			e.metrics.headerRejected(hve.Reason)
			e.log.Debug("header rejected", "block", b.BlockHash.String(), "reason", string(hve.Reason), "detail", hve.Detail)
		}
		return err
	}

	e.log.Info("header admitted",
		"block", b.BlockHash.String(),
		"height", admitted.Height,
		"cumulative_work", admitted.CumulativeWork)

	if e.announce != nil {
		e.announce.AnnounceHeader(b)
	}
	return nil
}

// admitLocked is the full validation pipeline. rateLimit is false when
// replaying blocks from storage.
func (e *Engine) admitLocked(b *Block, rateLimit bool) (*BlockNode, error) {
	if rateLimit && !e.limiter.AllowN(e.cfg.Clock(), 1) {
		return nil, headerErr(ReasonRateLimited, b.BlockHash, "over %d headers/s", e.cfg.MaxHeadersPerSec)
	}

	if _, dup := e.byHash[b.BlockHash]; dup {
		return nil, headerErr(ReasonDuplicateBlock, b.BlockHash, "already in tree")
	}

	parentIdx, ok := e.byHash[b.PreviousHash]
	if !ok {
		return nil, headerErr(ReasonParentUnknown, b.BlockHash, "parent %s not in tree", b.PreviousHash)
	}
	parent := e.nodes[parentIdx]

	if b.Index != parent.Height+1 {
		return nil, headerErr(ReasonBadHeight, b.BlockHash, "height %d, parent at %d", b.Index, parent.Height)
	}
	if b.Timestamp <= parent.Block.Timestamp {
		return nil, headerErr(ReasonBadTimestamp, b.BlockHash, "timestamp %.3f not after parent %.3f", b.Timestamp, parent.Block.Timestamp)
	}

	if len(b.Problem.ProblemParams) == 0 {
		return nil, headerErr(ReasonMissingProof, b.BlockHash, "empty problem")
	}
	if len(b.Solution.SolutionData) == 0 || b.Solution.SolutionHash.IsZero() {
		return nil, headerErr(ReasonMissingProof, b.BlockHash, "empty solution")
	}
	if b.Problem.ParentHash != b.PreviousHash {
		return nil, headerErr(ReasonProblemUnbound, b.BlockHash, "problem bound to parent %s, header parent is %s", b.Problem.ParentHash, b.PreviousHash)
	}
	if b.Problem.Tier != b.MiningCapacity {
		return nil, headerErr(ReasonProblemUnbound, b.BlockHash, "problem tier %s, mining capacity %s", b.Problem.Tier, b.MiningCapacity)
	}
	if !ValidMerkleRoot(b.MerkleRoot) {
		return nil, headerErr(ReasonBadMerkleRoot, b.BlockHash, "merkle root %q is not a 64-hex digest", b.MerkleRoot)
	}
	if ComputeBlockHash(b) != b.BlockHash {
		return nil, headerErr(ReasonBadBlockHash, b.BlockHash, "hash does not cover header fields")
	}

	score := BlockWorkScore(b)
	if score <= 0 {
		return nil, headerErr(ReasonZeroWork, b.BlockHash, "work score %.6f", score)
	}
	if e.cfg.EnforceTarget && e.adjuster != nil {
		if target := e.adjuster.TargetForCapacity(b.MiningCapacity); score < target {
			return nil, headerErr(ReasonZeroWork, b.BlockHash, "work score %.3f below target %.3f", score, target)
		}
	}

	return e.addBlockToTreeLocked(b, parentIdx, score)
}

func (e *Engine) addBlockToTreeLocked(b *Block, parentIdx int, score float64) (*BlockNode, error) {
	parent := e.nodes[parentIdx]
	node := &BlockNode{
		Block:          b,
		ParentHash:     b.PreviousHash,
		CumulativeWork: parent.CumulativeWork + score,
		Height:         parent.Height + 1,
		ReceiptTime:    unixSeconds(e.cfg.Clock()),
		parent:         parentIdx,
	}

	if err := e.persistBlock(b); err != nil {
		return nil, err
	}

	idx := len(e.nodes)
	e.nodes = append(e.nodes, node)
	e.byHash[b.BlockHash] = idx
	parent.children = append(parent.children, idx)

	e.metrics.headerAdmitted()

	// Incremental fork choice: highest cumulative work wins, ties go to the
	// first-seen node so late announcement buys nothing.
	best := e.nodes[e.bestTip]
	if node.CumulativeWork > best.CumulativeWork ||
		(node.CumulativeWork == best.CumulativeWork && node.ReceiptTime < best.ReceiptTime) {
		e.bestTip = idx
		if err := e.store.StoreTip(b.BlockHash); err != nil {
			return nil, err
		}
		e.metrics.tipChanged(node.Height, node.CumulativeWork)
	}

	if e.adjuster != nil {
		e.adjuster.Update(score, b.Timestamp-parent.Block.Timestamp)
	}
	return node, nil
}

// ValidateReveal opens a commitment for an admitted header: it fetches the
// off-chain bundle if not supplied, recomputes the epoch salt from the
// parent, re-derives the instance and rejects any miner-supplied substitute,
// verifies the commitment byte-for-byte, and re-runs the full solver
// verification so a colliding commitment without a correct solution is still
// rejected. On success the (commitment -> cid) pair is recorded in the
// commit-index.
func (e *Engine) ValidateReveal(blockHash, commitment Hash, minerSalt Salt, bundle *ProofBundle) error {
	err := e.validateReveal(blockHash, commitment, minerSalt, bundle)
	if err != nil {
		var rve *RevealValidationError
		if errors.As(err, &rve) {
			e.metrics.revealRejected(rve.Reason)
			e.log.Debug("reveal rejected", "block", blockHash.String(), "reason", string(rve.Reason), "detail", rve.Detail)
		}
	}
	return err
}

func (e *Engine) validateReveal(blockHash, commitment Hash, minerSalt Salt, bundle *ProofBundle) error {
	e.mu.Lock()
	idx, ok := e.byHash[blockHash]
	if !ok {
		e.mu.Unlock()
		return revealErr(ReasonRevealParent, blockHash, "header not in tree")
	}
	node := e.nodes[idx]
	block := node.Block
	e.mu.Unlock()

	var cid string
	if bundle == nil {
		cid = block.OffchainCID
		if cid == "" {
			return revealErr(ReasonBundleUnfetchable, blockHash, "no bundle supplied and block carries no cid")
		}
		var err error
		bundle, err = e.store.GetProofBundle(cid)
		if err != nil {
			e.markRevealFailed(idx)
			return revealErr(ReasonBundleUnfetchable, blockHash, "cid %s: %v", cid, err)
		}
	} else {
		var err error
		cid, err = e.store.StoreProofBundle(bundle)
		if err != nil {
			return revealErr(ReasonBundleUnfetchable, blockHash, "storing bundle: %v", err)
		}
	}

	epochSalt := DeriveEpochSalt(block.PreviousHash, block.Timestamp, e.cfg.EpochDuration)
	if block.Problem.EpochSalt != epochSalt {
		e.markRevealFailed(idx)
		return revealErr(ReasonCommitmentMismatch, blockHash, "epoch salt does not derive from parent")
	}

	solver, err := e.registry.Solver(block.Problem.ProblemType)
	if err != nil {
		e.markRevealFailed(idx)
		return revealErr(ReasonSolverRejected, blockHash, "%v", err)
	}

	// The instance must be the deterministic derivation from (parent hash,
	// epoch salt, tier); a miner who ships its own instance is grinding.
	derived, err := solver.Generate(block.Problem.Tier, block.PreviousHash, epochSalt)
	if err != nil {
		e.markRevealFailed(idx)
		return revealErr(ReasonSolverRejected, blockHash, "deriving instance: %v", err)
	}
	if !bytes.Equal(derived.ProblemParams, block.Problem.ProblemParams) || derived.ProblemSize != block.Problem.ProblemSize {
		e.markRevealFailed(idx)
		return revealErr(ReasonInstanceMismatch, blockHash, "problem does not derive from (parent, epoch salt, %s)", block.Problem.Tier)
	}

	if !VerifyCommitment(commitment, block.Problem.ProblemParams, minerSalt, epochSalt, block.Solution.SolutionHash) {
		e.markRevealFailed(idx)
		return revealErr(ReasonCommitmentMismatch, blockHash, "commitment does not open")
	}

	result, err := solver.Verify(&block.Problem, &block.Solution, DefaultLimits())
	if err != nil {
		e.markRevealFailed(idx)
		return revealErr(ReasonSolverRejected, blockHash, "verify error: %v", err)
	}
	if !result.IsValid {
		e.markRevealFailed(idx)
		return revealErr(ReasonSolverRejected, blockHash, "solution does not satisfy instance")
	}

	if err := e.store.StoreCommitment(commitment, cid); err != nil {
		return revealErr(ReasonBundleUnfetchable, blockHash, "recording commitment: %v", err)
	}

	e.mu.Lock()
	node.revealValid = true
	node.revealFailed = false
	e.mu.Unlock()

	e.metrics.revealValid()
	e.log.Info("reveal valid", "block", blockHash.String(), "cid", cid)

	if e.announce != nil {
		e.announce.AnnounceReveal(blockHash, cid)
	}
	return nil
}

func (e *Engine) markRevealFailed(idx int) {
	e.mu.Lock()
	if !e.nodes[idx].revealValid {
		e.nodes[idx].revealFailed = true
	}
	e.mu.Unlock()
}

// GetBestTip returns the block at the head of the heaviest chain.
func (e *Engine) GetBestTip() *Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nodes[e.bestTip].Block
}

// BestTipNode returns a copy of the best tip's tree entry.
func (e *Engine) BestTipNode() BlockNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.nodes[e.bestTip]
}

// GetChainFromGenesis returns the best chain, genesis first. The returned
// slice is a snapshot; blocks are immutable and safe to share.
func (e *Engine) GetChainFromGenesis() []*Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chainToLocked(e.bestTip)
}

func (e *Engine) chainToLocked(idx int) []*Block {
	var rev []*Block
	for i := idx; i >= 0; i = e.nodes[i].parent {
		rev = append(rev, e.nodes[i].Block)
	}
	chain := make([]*Block, len(rev))
	for i, b := range rev {
		chain[len(rev)-1-i] = b
	}
	return chain
}

// GetBlockByHash returns an admitted block, or nil.
func (e *Engine) GetBlockByHash(h Hash) *Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.byHash[h]
	if !ok {
		return nil
	}
	return e.nodes[idx].Block
}

// IsFinalized reports whether the block is buried under ConfirmationDepth
// descendants on the best chain. Headers whose reveal failed never finalize.
func (e *Engine) IsFinalized(h Hash) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.byHash[h]
	if !ok {
		return false
	}
	node := e.nodes[idx]
	if node.revealFailed {
		return false
	}

	best := e.nodes[e.bestTip]
	if best.Height < node.Height || best.Height-node.Height < e.cfg.ConfirmationDepth {
		return false
	}

	// Must be an ancestor of the best tip.
	for i := e.bestTip; i >= 0; i = e.nodes[i].parent {
		if i == idx {
			return true
		}
		if e.nodes[i].Height < node.Height {
			return false
		}
	}
	return false
}

// HandleReorg switches the best chain to the one ending at newTipHash.
// It walks both chains back to genesis, finds the last common ancestor by
// index-aligned comparison, and rejects the switch as a defined no-op when
// the reorg is deeper than MaxReorgDepth. Historical blocks are never
// mutated; only tree pointers move.
func (e *Engine) HandleReorg(newTipHash Hash) (removed, added []*Block, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	newIdx, ok := e.byHash[newTipHash]
	if !ok {
		return nil, nil, fmt.Errorf("unknown reorg candidate %s", newTipHash)
	}
	if newIdx == e.bestTip {
		return nil, nil, nil
	}

	oldChain := e.chainToLocked(e.bestTip)
	newChain := e.chainToLocked(newIdx)

	forkPoint := 0
	for forkPoint+1 < len(oldChain) && forkPoint+1 < len(newChain) &&
		oldChain[forkPoint+1].BlockHash == newChain[forkPoint+1].BlockHash {
		forkPoint++
	}

	reorgDepth := len(oldChain) - forkPoint - 1
	if reorgDepth > e.cfg.MaxReorgDepth {
		e.log.Warn("reorg rejected",
			"candidate", newTipHash.String(),
			"depth", reorgDepth,
			"max_depth", e.cfg.MaxReorgDepth)
		return nil, nil, nil
	}

	removed = oldChain[forkPoint+1:]
	added = newChain[forkPoint+1:]

	e.bestTip = newIdx
	if err := e.store.StoreTip(newTipHash); err != nil {
		return nil, nil, err
	}

	e.metrics.reorgCompleted()
	e.metrics.tipChanged(e.nodes[newIdx].Height, e.nodes[newIdx].CumulativeWork)
	e.log.Info("reorg applied",
		"new_tip", newTipHash.String(),
		"depth", reorgDepth,
		"removed", len(removed),
		"added", len(added))
	return removed, added, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
