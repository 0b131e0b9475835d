package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/logging"
	"github.com/ar-conmit/hedera-mirror-node/merge"
	"github.com/ar-conmit/hedera-mirror-node/metrics"
	"github.com/ar-conmit/hedera-mirror-node/resilience"
	"github.com/ar-conmit/hedera-mirror-node/source"
)

// Checkpointer reports the last committed record file.
type Checkpointer interface {
	LatestRecordFile(ctx context.Context) (*domain.RecordFile, error)
}

// Stats tracks pipeline progress
type Stats struct {
	RecordFilesCommitted int64     `json:"record_files_committed"`
	RecordFilesSkipped   int64     `json:"record_files_skipped"`
	MutationsApplied     int64     `json:"mutations_applied"`
	CurrentRows          int64     `json:"current_rows"`
	HistoryRows          int64     `json:"history_rows"`
	EventRows            int64     `json:"event_rows"`
	Dropped              int64     `json:"dropped"`
	LastIndex            int64     `json:"last_index"`
	LastCommitAt         time.Time `json:"last_commit_at"`
	Running              bool      `json:"running"`
	LastError            string    `json:"last_error,omitempty"`
}

// Pipeline decodes record file N+1 while record file N commits. Commits run
// one at a time in stream order.
type Pipeline struct {
	registry   *merge.Registry
	committer  Committer
	checkpoint Checkpointer
	retry      *resilience.RetryManager
	metrics    *metrics.Collector
	logger     *logging.ComponentLogger

	mu    sync.RWMutex
	stats Stats
}

func NewPipeline(registry *merge.Registry, committer Committer, checkpoint Checkpointer,
	retry *resilience.RetryManager, m *metrics.Collector, logger *logging.ComponentLogger) *Pipeline {
	if m == nil {
		m = metrics.NewCollector()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		registry:   registry,
		committer:  committer,
		checkpoint: checkpoint,
		retry:      retry,
		metrics:    m,
		logger:     logger.With("pipeline"),
	}
}

type accumulated struct {
	lifecycle *Lifecycle
	meta      domain.RecordFile
}

// Run processes the stream until it is exhausted, the context ends, or a
// commit fails permanently. Record files at or below the persisted checkpoint
// are skipped.
func (p *Pipeline) Run(ctx context.Context, stream source.Stream) error {
	latest, err := p.checkpoint.LatestRecordFile(ctx)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	after := int64(-1)
	if latest != nil {
		after = latest.Index
		p.update(func(s *Stats) { s.LastIndex = latest.Index })
		p.logger.Info().Int64("index", latest.Index).Str("name", latest.Name).Msg("Resuming from checkpoint")
	}

	p.update(func(s *Stats) { s.Running = true; s.LastError = "" })
	defer p.update(func(s *Stats) { s.Running = false })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan accumulated, 1)
	decodeErr := make(chan error, 1)
	go func() {
		defer close(ready)
		decodeErr <- p.decode(ctx, stream, after, ready)
	}()

	commitErr := p.commitLoop(ctx, ready)
	if commitErr != nil {
		cancel()
	}
	derr := <-decodeErr

	switch {
	case commitErr != nil && !errors.Is(commitErr, context.Canceled):
		p.fail(commitErr)
		return commitErr
	case derr != nil && !errors.Is(derr, context.Canceled):
		p.fail(derr)
		return derr
	}
	return ctx.Err()
}

func (p *Pipeline) decode(ctx context.Context, stream source.Stream, after int64, ready chan<- accumulated) error {
	for {
		rf, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if rf.Meta.Index <= after {
			p.update(func(s *Stats) { s.RecordFilesSkipped++ })
			p.logger.Debug().Int64("index", rf.Meta.Index).Msg("Skipping record file at or below checkpoint")
			continue
		}
		after = rf.Meta.Index

		lc := NewLifecycle(p.registry, p.committer, p.retry, p.metrics)
		if err := lc.Start(); err != nil {
			return err
		}
		rf.Meta.LoadStart = time.Now().Unix()
		for _, m := range rf.Mutations {
			if err := lc.Apply(m); err != nil {
				return fmt.Errorf("record file %d (%s): %w", rf.Meta.Index, rf.Meta.Name, err)
			}
		}
		for _, e := range rf.Events {
			if err := lc.Append(e); err != nil {
				return fmt.Errorf("record file %d (%s): %w", rf.Meta.Index, rf.Meta.Name, err)
			}
		}

		select {
		case ready <- accumulated{lifecycle: lc, meta: rf.Meta}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) commitLoop(ctx context.Context, ready <-chan accumulated) error {
	for acc := range ready {
		meta := acc.meta
		meta.LoadEnd = time.Now().Unix()

		res, err := acc.lifecycle.Complete(ctx, &meta)
		if err != nil {
			return fmt.Errorf("record file %d (%s): %w", meta.Index, meta.Name, err)
		}

		p.update(func(s *Stats) {
			s.RecordFilesCommitted++
			s.MutationsApplied += int64(res.Mutations)
			s.CurrentRows += int64(res.CurrentRows)
			s.HistoryRows += int64(res.HistoryRows)
			s.EventRows += int64(res.EventRows)
			s.Dropped += int64(res.Dropped)
			s.LastIndex = res.Index
			s.LastCommitAt = time.Now()
		})
		p.logger.LogCommit(logging.CommitStats{
			Index:       res.Index,
			Name:        meta.Name,
			Mutations:   res.Mutations,
			CurrentRows: res.CurrentRows,
			HistoryRows: res.HistoryRows,
			EventRows:   res.EventRows,
			Dropped:     res.Dropped,
			Duration:    res.Duration,
		})
	}
	return nil
}

func (p *Pipeline) fail(err error) {
	p.update(func(s *Stats) { s.LastError = err.Error() })
	p.logger.Error().Err(err).Msg("Pipeline halted")
}

func (p *Pipeline) update(fn func(s *Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.stats)
}

// Stats returns a snapshot of pipeline progress.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Healthy reports whether the pipeline has not halted on an error.
func (p *Pipeline) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats.LastError == ""
}
