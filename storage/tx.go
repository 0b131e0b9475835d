package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ar-conmit/hedera-mirror-node/domain"
)

// Tx is the write surface of one record file commit. All writes become
// visible together on Commit or not at all.
type Tx interface {
	// LoadCurrent returns the open version of every key that has one.
	LoadCurrent(ctx context.Context, t domain.EntityType, keys []string) (map[string]domain.VersionedRecord, error)
	// InsertHistory appends closed versions of one entity type.
	InsertHistory(ctx context.Context, t domain.EntityType, records []domain.VersionedRecord) error
	// UpsertCurrent writes the open version of each record, replacing any previous one.
	UpsertCurrent(ctx context.Context, t domain.EntityType, records []domain.VersionedRecord) error
	// InsertEvents appends rows of one event table. Events are never updated.
	InsertEvents(ctx context.Context, t domain.EventType, events []domain.Event) error
	LatestRecordFile(ctx context.Context) (*domain.RecordFile, error)
	InsertRecordFile(ctx context.Context, rf domain.RecordFile, batchID string) error
	Commit() error
	Rollback() error
}

type sqlTx struct {
	tx        *sql.Tx
	dialect   dialect
	flushRows int
}

func (t *sqlTx) LoadCurrent(ctx context.Context, typ domain.EntityType, keys []string) (map[string]domain.VersionedRecord, error) {
	out := make(map[string]domain.VersionedRecord, len(keys))
	for start := 0; start < len(keys); start += t.flushRows {
		chunk := keys[start:min(start+t.flushRows, len(keys))]
		query := fmt.Sprintf(
			"SELECT id, fields, timestamp_lower, timestamp_upper FROM %s WHERE id IN (%s)",
			t.dialect.quote(string(typ)), t.dialect.list(1, len(chunk)))

		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		if err := t.loadChunk(ctx, typ, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *sqlTx) loadChunk(ctx context.Context, typ domain.EntityType, query string, args []any, out map[string]domain.VersionedRecord) error {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load current %s: %w", typ, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(typ, rows)
		if err != nil {
			return fmt.Errorf("failed to scan current %s: %w", typ, err)
		}
		out[rec.Key] = rec
	}
	return rows.Err()
}

func (t *sqlTx) InsertHistory(ctx context.Context, typ domain.EntityType, records []domain.VersionedRecord) error {
	for _, r := range records {
		if r.Upper == nil {
			return fmt.Errorf("history row %s %s has no upper bound", typ, r.Key)
		}
	}
	prefix := fmt.Sprintf("INSERT INTO %s (id, fields, timestamp_lower, timestamp_upper) VALUES ",
		t.dialect.quote(typ.HistoryTable()))
	return t.writeRows(ctx, typ, prefix, "", records)
}

func (t *sqlTx) UpsertCurrent(ctx context.Context, typ domain.EntityType, records []domain.VersionedRecord) error {
	prefix := fmt.Sprintf("INSERT INTO %s (id, fields, timestamp_lower, timestamp_upper) VALUES ",
		t.dialect.quote(string(typ)))
	suffix := " ON CONFLICT (id) DO UPDATE SET fields = excluded.fields, " +
		"timestamp_lower = excluded.timestamp_lower, timestamp_upper = excluded.timestamp_upper"
	return t.writeRows(ctx, typ, prefix, suffix, records)
}

func (t *sqlTx) writeRows(ctx context.Context, typ domain.EntityType, prefix, suffix string, records []domain.VersionedRecord) error {
	args := make([]any, 0, len(records)*4)
	for _, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", typ, r.Key, err)
		}
		var upper any
		if r.Upper != nil {
			upper = *r.Upper
		}
		args = append(args, r.Key, string(fields), r.Lower, upper)
	}
	if err := t.execRows(ctx, prefix, suffix, 4, args); err != nil {
		return fmt.Errorf("failed to write %s rows: %w", typ, err)
	}
	return nil
}

func (t *sqlTx) InsertEvents(ctx context.Context, typ domain.EventType, events []domain.Event) error {
	args := make([]any, 0, len(events)*3)
	for _, e := range events {
		if e.Type != typ {
			return fmt.Errorf("%s event at %d written to %s", e.Type, e.ConsensusTimestamp, typ)
		}
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s at %d: %w", typ, e.ConsensusTimestamp, err)
		}
		args = append(args, e.ConsensusTimestamp, e.PayerAccountID.String(), string(payload))
	}
	prefix := fmt.Sprintf("INSERT INTO %s (consensus_timestamp, payer_account_id, payload) VALUES ",
		t.dialect.quote(string(typ)))
	if err := t.execRows(ctx, prefix, "", 3, args); err != nil {
		return fmt.Errorf("failed to write %s rows: %w", typ, err)
	}
	return nil
}

// execRows issues one multi-row statement per flushRows rows of width
// arguments each.
func (t *sqlTx) execRows(ctx context.Context, prefix, suffix string, width int, args []any) error {
	n := len(args) / width
	for start := 0; start < n; start += t.flushRows {
		end := min(start+t.flushRows, n)

		var sb strings.Builder
		sb.WriteString(prefix)
		sb.WriteString(t.dialect.rows(end-start, width))
		sb.WriteString(suffix)
		if _, err := t.tx.ExecContext(ctx, sb.String(), args[start*width:end*width]...); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) LatestRecordFile(ctx context.Context) (*domain.RecordFile, error) {
	return latestRecordFile(ctx, t.tx)
}

func (t *sqlTx) InsertRecordFile(ctx context.Context, rf domain.RecordFile, batchID string) error {
	query := fmt.Sprintf(`INSERT INTO record_file
		("index", name, consensus_start, consensus_end, hash, prev_hash, count, hapi_version, load_start, load_end, batch_id)
		VALUES (%s)`, t.dialect.list(1, 11))
	_, err := t.tx.ExecContext(ctx, query,
		rf.Index, rf.Name, rf.ConsensusStart, rf.ConsensusEnd, rf.Hash,
		nullString(rf.PrevHash), rf.Count, nullString(rf.HapiVersion),
		rf.LoadStart, rf.LoadEnd, batchID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record file %d: %w", rf.Index, err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
