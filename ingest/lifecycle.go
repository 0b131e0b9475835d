package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ar-conmit/hedera-mirror-node/batch"
	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/historize"
	"github.com/ar-conmit/hedera-mirror-node/merge"
	"github.com/ar-conmit/hedera-mirror-node/metrics"
	"github.com/ar-conmit/hedera-mirror-node/resilience"
)

var ErrInvalidState = errors.New("invalid lifecycle state")

// State of a record file's batch.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateCommitting:
		return "committing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Committer persists a sealed batch.
type Committer interface {
	Commit(ctx context.Context, b *batch.Batch, rf *domain.RecordFile) (historize.Result, error)
}

// Lifecycle drives one batch through Idle -> Accumulating -> Committing -> Idle.
// Several lifecycles may be in flight at once; the committer serializes their
// commits.
type Lifecycle struct {
	registry  *merge.Registry
	committer Committer
	retry     *resilience.RetryManager
	metrics   *metrics.Collector

	mu    sync.Mutex
	state State
	batch *batch.Batch
}

// NewLifecycle returns an idle lifecycle. retry may be nil to commit once.
func NewLifecycle(registry *merge.Registry, committer Committer, retry *resilience.RetryManager, m *metrics.Collector) *Lifecycle {
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Lifecycle{registry: registry, committer: committer, retry: retry, metrics: m}
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start opens a fresh batch.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, l.state)
	}
	l.batch = batch.New(l.registry)
	l.state = StateAccumulating
	return nil
}

// Apply stages one mutation. A structural defect fails the batch; the caller
// still completes or abandons it.
func (l *Lifecycle) Apply(m domain.Mutation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateAccumulating {
		return fmt.Errorf("%w: apply while %s", ErrInvalidState, l.state)
	}
	if err := l.batch.Apply(m); err != nil {
		return err
	}
	l.metrics.MutationApplied()
	return nil
}

// Append stages one append-only event.
func (l *Lifecycle) Append(e domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateAccumulating {
		return fmt.Errorf("%w: append while %s", ErrInvalidState, l.state)
	}
	return l.batch.Append(e)
}

// Complete commits the batch with its record file and returns to Idle. A nil
// record file discards the batch. On failure the batch is discarded and the
// record file stays eligible for reprocessing.
func (l *Lifecycle) Complete(ctx context.Context, rf *domain.RecordFile) (historize.Result, error) {
	l.mu.Lock()
	if l.state != StateAccumulating {
		state := l.state
		l.mu.Unlock()
		return historize.Result{}, fmt.Errorf("%w: complete while %s", ErrInvalidState, state)
	}
	b := l.batch
	l.state = StateCommitting
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.batch = nil
		l.state = StateIdle
		l.mu.Unlock()
	}()

	var res historize.Result
	commit := func(ctx context.Context) error {
		var err error
		res, err = l.committer.Commit(ctx, b, rf)
		return err
	}
	if l.retry == nil || rf == nil {
		return res, commit(ctx)
	}
	err := l.retry.Execute(ctx, "commit", commit)
	return res, err
}

// Pending returns the number of staged records, for diagnostics.
func (l *Lifecycle) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.batch == nil {
		return 0
	}
	return l.batch.Len()
}
