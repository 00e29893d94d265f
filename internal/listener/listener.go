// Package listener keeps the off-chain store eventually consistent with the
// external ledger. It discovers finalized transactions touching the
// sacco_registry package, decodes their events, dispatches them to handlers,
// and advances a durable checkpoint.
//
// Delivery is at-least-once: one bad event never blocks progress on the
// rest, and every handler write is an idempotent match-then-update.
package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saccochain/ledgersync/internal/ledger"
	"github.com/saccochain/ledgersync/internal/store"
	"go.uber.org/zap"
)

// State is the listener lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StatePolling  State = "polling"
)

// ReconcileStore is the narrow store surface the listener writes to.
type ReconcileStore interface {
	FindMemberByWallet(ctx context.Context, address string) (*store.Member, error)
	FindMemberByWalletAndNationalID(ctx context.Context, address, nationalID string) (*store.Member, error)
	FindSaccoByLicense(ctx context.Context, licenseNo string) (*store.Sacco, error)
	MarkMemberChainRegistered(ctx context.Context, id uuid.UUID, txDigest string) error
	MarkSaccoChainRegistered(ctx context.Context, id uuid.UUID, txDigest string) error
	MarkScoresPendingVerification(ctx context.Context, memberID uuid.UUID) (int, error)
	LoadCheckpoint(ctx context.Context) (string, error)
	SaveCheckpoint(ctx context.Context, digest string) error
}

// Config holds listener settings.
type Config struct {
	PollInterval  time.Duration // steady-state tick, default 10s
	PollLimit     int           // newest-first window per tick, default 10
	BackfillLimit int           // page size during backfill, default 50
	MaxBackoff    time.Duration // backoff cap on transport failure, default 5m
	CallTimeout   time.Duration // budget for one full cycle, default 30s
}

// EventMetricsFunc is an optional callback recording per-event dispatch results.
type EventMetricsFunc func(kind string, ok bool)

// CycleMetricsFunc is an optional callback recording poll cycle outcomes.
type CycleMetricsFunc func(err error)

// CheckpointMetricsFunc is an optional callback fired on checkpoint advance.
type CheckpointMetricsFunc func()

// Status is the operational snapshot exposed to the admin surface.
type Status struct {
	Listening           bool   `json:"isListening"`
	State               State  `json:"state"`
	LastProcessedDigest string `json:"lastProcessedDigest"`
	Network             string `json:"network"`
}

// Listener is the reconciliation state machine. One instance per process;
// it is owned by the composition root, not a package singleton.
type Listener struct {
	client ledger.Client
	stor   ReconcileStore
	cfg    Config
	logger *zap.Logger

	onEvent      EventMetricsFunc
	onCycle      CycleMetricsFunc
	onCheckpoint CheckpointMetricsFunc

	// mu guards state, checkpoint and quit. The checkpoint is only advanced
	// after a transaction's handlers have all been attempted.
	mu         sync.Mutex
	state      State
	checkpoint string
	quit       chan struct{}

	// cycleMu serialises poll cycles: a tick arriving while a cycle is in
	// flight is skipped, never queued, so two cycles can't race on the
	// checkpoint.
	cycleMu sync.Mutex

	// failures counts consecutive transport failures; owned by the loop
	// goroutine.
	failures int
}

// New creates a stopped Listener.
func New(client ledger.Client, stor ReconcileStore, cfg Config, logger *zap.Logger) *Listener {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollLimit == 0 {
		cfg.PollLimit = 10
	}
	if cfg.BackfillLimit == 0 {
		cfg.BackfillLimit = 50
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Listener{
		client: client,
		stor:   stor,
		cfg:    cfg,
		logger: logger,
		state:  StateStopped,
	}
}

// SetEventMetrics configures the per-event metrics callback.
func (l *Listener) SetEventMetrics(fn EventMetricsFunc) { l.onEvent = fn }

// SetCycleMetrics configures the per-cycle metrics callback.
func (l *Listener) SetCycleMetrics(fn CycleMetricsFunc) { l.onCycle = fn }

// SetCheckpointMetrics configures the checkpoint advance callback.
func (l *Listener) SetCheckpointMetrics(fn CheckpointMetricsFunc) { l.onCheckpoint = fn }

// Start loads the durable checkpoint, backfills missed transactions, and
// begins steady-state polling. Calling Start while already listening is a
// no-op, not an error.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateStopped {
		l.mu.Unlock()
		l.logger.Warn("event listener already running")
		return nil
	}
	l.state = StateStarting
	l.quit = make(chan struct{})
	l.mu.Unlock()

	cp, err := l.stor.LoadCheckpoint(ctx)
	if err != nil {
		l.mu.Lock()
		l.state = StateStopped
		l.mu.Unlock()
		return err
	}
	l.setCheckpoint(cp)
	l.logger.Info("starting ledger event listener",
		zap.String("checkpoint", cp),
		zap.String("network", l.client.Network()),
	)

	// Backfill failures are transient; the steady-state poll picks up where
	// the backfill left off on the next tick.
	l.cycleMu.Lock()
	if err := l.backfill(ctx); err != nil {
		l.logger.Error("backfill failed, will retry via polling", zap.Error(err))
	}
	l.cycleMu.Unlock()

	// Stop may have been called while the backfill ran; only a listener
	// still in Starting proceeds to polling.
	l.mu.Lock()
	if l.state != StateStarting {
		l.mu.Unlock()
		l.logger.Info("listener stopped during backfill, not entering polling")
		return nil
	}
	quit := l.quit
	l.state = StatePolling
	l.mu.Unlock()

	go l.loop(quit)
	return nil
}

// Stop cancels the poll timer and flips the state to Stopped immediately.
// An in-flight cycle finishes naturally but schedules no successor.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return
	}
	close(l.quit)
	l.quit = nil
	l.state = StateStopped
	l.logger.Info("stopped ledger event listener",
		zap.String("checkpoint", l.checkpoint))
}

// GetStatus returns the listener's operational snapshot.
func (l *Listener) GetStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Listening:           l.state != StateStopped,
		State:               l.state,
		LastProcessedDigest: l.checkpoint,
		Network:             l.client.Network(),
	}
}

func (l *Listener) getCheckpoint() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkpoint
}

func (l *Listener) setCheckpoint(digest string) {
	l.mu.Lock()
	l.checkpoint = digest
	l.mu.Unlock()
}

// loop runs steady-state polling until quit is closed. Transport failures
// stretch the next delay exponentially up to MaxBackoff; one clean cycle
// resets it.
func (l *Listener) loop(quit <-chan struct{}) {
	timer := time.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			timer.Reset(l.tick())
		case <-quit:
			return
		}
	}
}

// tick runs one guarded poll cycle and returns the delay until the next one.
// A tick arriving while a cycle is still in flight is skipped, not queued.
func (l *Listener) tick() time.Duration {
	if !l.cycleMu.TryLock() {
		l.logger.Debug("poll cycle still in flight, skipping tick")
		return l.cfg.PollInterval
	}
	err := l.pollOnce()
	l.cycleMu.Unlock()
	if l.onCycle != nil {
		l.onCycle(err)
	}
	return l.nextDelay(err)
}

func (l *Listener) nextDelay(err error) time.Duration {
	if err == nil || !errors.Is(err, ledger.ErrUnavailable) {
		l.failures = 0
		return l.cfg.PollInterval
	}
	l.failures++
	delay := l.cfg.PollInterval << l.failures
	if delay > l.cfg.MaxBackoff || delay <= 0 {
		delay = l.cfg.MaxBackoff
	}
	l.logger.Warn("ledger unreachable, backing off",
		zap.Int("consecutive_failures", l.failures),
		zap.Duration("next_poll_in", delay),
	)
	return delay
}

// backfill pages through all package transactions oldest-first and processes
// everything strictly after the checkpoint. If the checkpoint digest is not
// in the node's window (pruned, or first run) everything is processed;
// idempotent handlers make the overlap harmless.
func (l *Listener) backfill(ctx context.Context) error {
	var digests []string
	cursor := ""
	for {
		page, err := l.client.QueryTransactions(ctx, ledger.TransactionQuery{
			Cursor:     cursor,
			Descending: false,
			Limit:      l.cfg.BackfillLimit,
		})
		if err != nil {
			return err
		}
		for _, tx := range page.Data {
			digests = append(digests, tx.Digest)
		}
		if !page.HasNextPage || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	start := 0
	if cp := l.getCheckpoint(); cp != "" {
		found := false
		for i, d := range digests {
			if d == cp {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			l.logger.Warn("checkpoint not in ledger window, reprocessing visible history",
				zap.String("checkpoint", cp))
		}
	}

	processed := 0
	for _, digest := range digests[start:] {
		if err := l.processTransaction(ctx, digest); err != nil {
			return err
		}
		processed++
	}
	l.logger.Info("backfill complete",
		zap.Int("processed", processed),
		zap.String("checkpoint", l.getCheckpoint()),
	)
	return nil
}

// pollOnce queries the newest PollLimit transactions and processes those
// strictly newer than the checkpoint, oldest-first.
func (l *Listener) pollOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CallTimeout)
	defer cancel()

	page, err := l.client.QueryTransactions(ctx, ledger.TransactionQuery{
		Descending: true,
		Limit:      l.cfg.PollLimit,
	})
	if err != nil {
		return err
	}

	// Walk newest to oldest; the checkpoint digest is the boundary of
	// already-processed work.
	cp := l.getCheckpoint()
	var fresh []string
	for _, tx := range page.Data {
		if tx.Digest == cp {
			break
		}
		fresh = append(fresh, tx.Digest)
	}

	for i := len(fresh) - 1; i >= 0; i-- {
		if err := l.processTransaction(ctx, fresh[i]); err != nil {
			return err
		}
	}
	return nil
}

// processTransaction fetches full detail, dispatches every event, and only
// then advances the checkpoint. A fetch failure aborts the cycle
// without advancing, so the transaction is retried next cycle; a handler
// failure is logged and skipped.
func (l *Listener) processTransaction(ctx context.Context, digest string) error {
	tx, err := l.client.GetTransaction(ctx, digest)
	if err != nil {
		return err
	}

	for _, ev := range tx.Events {
		kind := string(ev.Kind())
		if err := l.handleEvent(ctx, ev, digest); err != nil {
			l.logger.Error("event handler failed",
				zap.String("event", ev.Type),
				zap.String("digest", digest),
				zap.Error(err),
			)
			if l.onEvent != nil {
				l.onEvent(kind, false)
			}
			continue
		}
		if l.onEvent != nil {
			l.onEvent(kind, true)
		}
	}

	l.advanceCheckpoint(ctx, digest)
	l.logger.Debug("processed ledger transaction", zap.String("digest", digest))
	return nil
}

// advanceCheckpoint updates the in-memory cursor and persists it. A persist
// failure is logged but does not fail the cycle; the durable checkpoint
// simply lags and the overlap is replayed after a restart.
func (l *Listener) advanceCheckpoint(ctx context.Context, digest string) {
	l.setCheckpoint(digest)
	if l.onCheckpoint != nil {
		l.onCheckpoint()
	}
	if err := l.stor.SaveCheckpoint(ctx, digest); err != nil {
		l.logger.Warn("persist checkpoint failed", zap.String("digest", digest), zap.Error(err))
	}
}
