package historize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ar-conmit/hedera-mirror-node/batch"
	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/logging"
	"github.com/ar-conmit/hedera-mirror-node/merge"
	"github.com/ar-conmit/hedera-mirror-node/metrics"
	"github.com/ar-conmit/hedera-mirror-node/storage"
)

// Store begins the transaction a record file is committed in.
type Store interface {
	Begin(ctx context.Context) (storage.Tx, error)
}

// Result summarizes one commit.
type Result struct {
	Index       int64
	BatchID     string
	Mutations   int
	CurrentRows int
	HistoryRows int
	EventRows   int
	Dropped     int
	Duration    time.Duration
}

// Committer reconciles sealed batches with persisted state and writes them,
// together with their record file, in a single transaction. Commits are
// serialized.
type Committer struct {
	store    Store
	registry *merge.Registry
	logger   *logging.ComponentLogger
	metrics  *metrics.Collector

	mu sync.Mutex
}

func NewCommitter(store Store, registry *merge.Registry, logger *logging.ComponentLogger, m *metrics.Collector) *Committer {
	if logger == nil {
		logger = logging.Nop()
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Committer{store: store, registry: registry, logger: logger.With("committer"), metrics: m}
}

// Commit writes the batch and its record file atomically. A nil record file
// discards the batch without touching the store.
func (c *Committer) Commit(ctx context.Context, b *batch.Batch, rf *domain.RecordFile) (Result, error) {
	if rf == nil {
		c.logger.Debug().Int("records", b.Len()).Msg("Discarding batch without record file")
		return Result{}, nil
	}
	if err := b.Seal(); err != nil {
		return Result{}, fmt.Errorf("batch not committable: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	res, err := c.commit(ctx, b, *rf)
	if err != nil {
		c.metrics.CommitFailed(storage.IsRetryable(err))
		return Result{}, err
	}
	res.Duration = time.Since(start)
	c.metrics.CommitSucceeded(res.Index, res.Mutations, res.Duration)
	return res, nil
}

func (c *Committer) commit(ctx context.Context, b *batch.Batch, rf domain.RecordFile) (res Result, err error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Warn().Err(rbErr).Int64("index", rf.Index).Msg("Rollback failed")
			}
		}
	}()

	if err = checkCheckpoint(ctx, tx, rf); err != nil {
		return res, err
	}

	p := newPlan(c.registry, c.logger, b)
	written := make(map[domain.EntityType][2]int)
	for _, t := range domain.EntityTypes() {
		var rows typeRows
		rows, err = p.reconcile(ctx, tx, t)
		if err != nil {
			return res, err
		}
		if len(rows.history) > 0 {
			if err = tx.InsertHistory(ctx, t, rows.history); err != nil {
				return res, err
			}
		}
		if len(rows.current) > 0 {
			if err = tx.UpsertCurrent(ctx, t, rows.current); err != nil {
				return res, err
			}
		}
		if len(rows.history)+len(rows.current) > 0 {
			written[t] = [2]int{len(rows.history), len(rows.current)}
		}
		res.HistoryRows += len(rows.history)
		res.CurrentRows += len(rows.current)
	}

	events := groupEvents(b.Events())
	for _, t := range domain.EventTypes() {
		if len(events[t]) == 0 {
			continue
		}
		if err = tx.InsertEvents(ctx, t, events[t]); err != nil {
			return res, err
		}
		res.EventRows += len(events[t])
	}

	res.BatchID = uuid.NewString()
	if err = tx.InsertRecordFile(ctx, rf, res.BatchID); err != nil {
		return res, err
	}
	if err = tx.Commit(); err != nil {
		return res, err
	}

	for t, n := range written {
		c.metrics.RowsWritten(string(t), "history", n[0])
		c.metrics.RowsWritten(string(t), "current", n[1])
	}
	for t, e := range events {
		c.metrics.RowsWritten(string(t), "event", len(e))
	}
	for t, n := range p.dropped {
		c.metrics.MutationsDropped(string(t), n)
		res.Dropped += n
	}
	res.Index = rf.Index
	res.Mutations = b.Applied()
	return res, nil
}

func checkCheckpoint(ctx context.Context, tx storage.Tx, rf domain.RecordFile) error {
	latest, err := tx.LatestRecordFile(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		return nil
	}
	if rf.Index <= latest.Index {
		return fmt.Errorf("%w: record file %d does not advance checkpoint %d", storage.ErrCheckpoint, rf.Index, latest.Index)
	}
	if rf.PrevHash != "" && rf.PrevHash != latest.Hash {
		return fmt.Errorf("%w: record file %d previous hash %s does not match %s",
			storage.ErrCheckpoint, rf.Index, rf.PrevHash, latest.Hash)
	}
	return nil
}

// groupEvents splits events by table keeping arrival order within each.
func groupEvents(events []domain.Event) map[domain.EventType][]domain.Event {
	out := make(map[domain.EventType][]domain.Event)
	for _, e := range events {
		out[e.Type] = append(out[e.Type], e)
	}
	return out
}

// IsFatal reports errors that retrying the same batch cannot fix.
func IsFatal(err error) bool {
	return errors.Is(err, storage.ErrCheckpoint) || errors.Is(err, domain.ErrStructural)
}

// sortedKeys returns map keys in lexical order for deterministic statements.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
