package lending

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lendcore/core/events"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending/rates"
)

// ModuleName is the pause guard key of the pool.
const ModuleName = "lending"

// DefaultPoolAddress is the ledger identity of the pool: suppliers and
// repayers approve it on the underlying ledger.
var DefaultPoolAddress = common.BytesToAddress(crypto.Keccak256([]byte("lendcore/pool")))

// Clock supplies the block context of a call.
type Clock interface {
	Now() Block
}

// ManualClock is a Clock driven by the caller, for tests and simulation.
type ManualClock struct {
	mu    sync.Mutex
	block Block
}

// NewManualClock starts a clock at block.
func NewManualClock(block Block) *ManualClock { return &ManualClock{block: block} }

// Now implements Clock.
func (c *ManualClock) Now() Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// Advance moves to the next block, seconds later.
func (c *ManualClock) Advance(seconds uint64) Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block.Number++
	c.block.Timestamp += seconds
	return c.block
}

// Set jumps to block.
func (c *ManualClock) Set(block Block) {
	c.mu.Lock()
	c.block = block
	c.mu.Unlock()
}

// SystemClock derives blocks from wall time: one block per second.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() Block {
	ts := uint64(time.Now().Unix())
	return Block{Number: ts, Timestamp: ts}
}

// Metrics receives per call outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveOperation(op, result string, elapsed time.Duration)
	SetReserveUtilization(asset common.Address, ratio float64)
}

// Snapshotter persists committed state.
type Snapshotter interface {
	Save(*State) error
}

// Pool is the lending engine. Every call runs under one mutex against a
// private overlay of the state; effects and events are published only when
// the call succeeds.
type Pool struct {
	mu      sync.Mutex
	state   *State
	address common.Address

	clock      Clock
	strategies *rates.Registry
	oracle     PriceOracle
	acl        ACL
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	metrics    Metrics
	store      Snapshotter
	logger     *slog.Logger
}

// Option customises a Pool.
type Option func(*Pool)

// WithClock sets the block source. Defaults to SystemClock.
func WithClock(c Clock) Option { return func(p *Pool) { p.clock = c } }

// WithEmitter sets the event sink.
func WithEmitter(e events.Emitter) Option { return func(p *Pool) { p.emitter = e } }

// WithPauses wires a module pause view; a paused module rejects every call.
func WithPauses(v nativecommon.PauseView) Option { return func(p *Pool) { p.pauses = v } }

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option { return func(p *Pool) { p.metrics = m } }

// WithSnapshotter persists state after every committed call.
func WithSnapshotter(s Snapshotter) Option { return func(p *Pool) { p.store = s } }

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option { return func(p *Pool) { p.logger = l } }

// WithState starts the pool from a restored state.
func WithState(s *State) Option { return func(p *Pool) { p.state = s } }

// WithAddress overrides DefaultPoolAddress.
func WithAddress(addr common.Address) Option { return func(p *Pool) { p.address = addr } }

// NewPool builds a pool over its collaborators.
func NewPool(oracle PriceOracle, strategies *rates.Registry, acl ACL, opts ...Option) *Pool {
	p := &Pool{
		state:      NewState(),
		address:    DefaultPoolAddress,
		clock:      SystemClock{},
		strategies: strategies,
		oracle:     oracle,
		acl:        acl,
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.strategies == nil {
		p.strategies = rates.NewRegistry()
	}
	return p
}

// Address returns the pool's ledger identity.
func (p *Pool) Address() common.Address { return p.address }

// Strategies exposes the interest rate strategy registry.
func (p *Pool) Strategies() *rates.Registry { return p.strategies }

func (p *Pool) begin() *txn {
	t := newTxn(p.state, p.clock.Now())
	t.pool = p.address
	t.strategies = p.strategies
	t.oracle = p.oracle
	t.acl = p.acl
	return t
}

// view returns a txn that is never committed.
func (p *Pool) view() *txn { return p.begin() }

// run executes fn atomically.
func (p *Pool) run(op string, fn func(*txn) error) error {
	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.exec(fn)
	result := "ok"
	if err != nil {
		result = Code(err)
		if result == "" {
			result = "error"
		}
		p.logger.Info("lending call rejected", "op", op, "code", result, "error", err)
	} else {
		p.logger.Debug("lending call committed", "op", op)
	}
	if p.metrics != nil {
		p.metrics.ObserveOperation(op, result, time.Since(start))
	}
	return err
}

func (p *Pool) exec(fn func(*txn) error) error {
	if p.pauses != nil {
		if err := nativecommon.Guard(p.pauses, ModuleName); err != nil {
			return err
		}
	}
	t := p.begin()
	if err := fn(t); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.Save(t.staged()); err != nil {
			p.logger.Error("lending state not persisted", "error", err)
			return fmt.Errorf("%w: %v", errPersist, err)
		}
	}
	utilization := t.utilization
	for _, e := range t.commit() {
		p.emitter.Emit(e)
	}
	if p.metrics != nil {
		for asset, ratio := range utilization {
			p.metrics.SetReserveUtilization(asset, ratio)
		}
	}
	return nil
}

var errPersist = errors.New("lending: state not persisted")
