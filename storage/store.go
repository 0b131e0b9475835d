package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ar-conmit/hedera-mirror-node/config"
	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/logging"
)

// Store is the relational store holding current and historical entity state.
type Store struct {
	db        *sql.DB
	dialect   dialect
	flushRows int
	logger    *logging.ComponentLogger
}

// Open connects using the configured driver and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, flushRows int, logger *logging.ComponentLogger) (*Store, error) {
	db, err := sql.Open(cfg.Driver, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := New(db, cfg.Driver, flushRows, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle. flushRows bounds the rows carried by a
// single multi-row statement.
func New(db *sql.DB, driver string, flushRows int, logger *logging.ComponentLogger) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if flushRows < 1 {
		flushRows = 1000
	}
	flushRows = min(flushRows, config.MaxFlushRows)
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{db: db, dialect: d, flushRows: flushRows, logger: logger.With("storage")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Begin starts the transaction one record file is committed in.
func (s *Store) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{tx: tx, dialect: s.dialect, flushRows: s.flushRows}, nil
}

// Current returns the open version of a record.
func (s *Store) Current(ctx context.Context, t domain.EntityType, key string) (domain.VersionedRecord, error) {
	query := fmt.Sprintf(
		"SELECT id, fields, timestamp_lower, timestamp_upper FROM %s WHERE id = %s",
		s.dialect.quote(string(t)), s.dialect.placeholder(1))
	return s.queryOne(ctx, t, query, key)
}

// AsOf returns the version whose validity interval contains ts.
func (s *Store) AsOf(ctx context.Context, t domain.EntityType, key string, ts int64) (domain.VersionedRecord, error) {
	current := fmt.Sprintf(
		"SELECT id, fields, timestamp_lower, timestamp_upper FROM %s WHERE id = %s AND timestamp_lower <= %s",
		s.dialect.quote(string(t)), s.dialect.placeholder(1), s.dialect.placeholder(2))
	rec, err := s.queryOne(ctx, t, current, key, ts)
	if !errors.Is(err, ErrNotFound) {
		return rec, err
	}

	history := fmt.Sprintf(
		"SELECT id, fields, timestamp_lower, timestamp_upper FROM %s WHERE id = %s AND timestamp_lower <= %s AND timestamp_upper > %s",
		s.dialect.quote(t.HistoryTable()), s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3))
	return s.queryOne(ctx, t, history, key, ts, ts)
}

// History returns every version of a record ordered by lower bound, the
// current version last.
func (s *Store) History(ctx context.Context, t domain.EntityType, key string) ([]domain.VersionedRecord, error) {
	query := fmt.Sprintf(
		"SELECT id, fields, timestamp_lower, timestamp_upper FROM %s WHERE id = %s ORDER BY timestamp_lower",
		s.dialect.quote(t.HistoryTable()), s.dialect.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s history: %w", t, err)
	}
	defer rows.Close()

	var out []domain.VersionedRecord
	for rows.Next() {
		rec, err := scanRecord(t, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	current, err := s.Current(ctx, t, key)
	switch {
	case err == nil:
		out = append(out, current)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return out, nil
}

// LatestRecordFile returns the checkpoint, or nil when nothing was committed.
func (s *Store) LatestRecordFile(ctx context.Context) (*domain.RecordFile, error) {
	return latestRecordFile(ctx, s.db)
}

// CountCurrent returns the number of current rows of a type.
func (s *Store) CountCurrent(ctx context.Context, t domain.EntityType) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.dialect.quote(string(t))).Scan(&n)
	return n, err
}

func (s *Store) queryOne(ctx context.Context, t domain.EntityType, query string, args ...any) (domain.VersionedRecord, error) {
	rec, err := scanRecord(t, s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%s %v: %w", t, args[0], ErrNotFound)
	}
	return rec, err
}

// Events returns the rows of an event table with from <= timestamp < to, in
// timestamp order.
func (s *Store) Events(ctx context.Context, t domain.EventType, from, to int64) ([]domain.Event, error) {
	query := fmt.Sprintf(
		"SELECT consensus_timestamp, payer_account_id, payload FROM %s WHERE consensus_timestamp >= %s AND consensus_timestamp < %s ORDER BY consensus_timestamp",
		s.dialect.quote(string(t)), s.dialect.placeholder(1), s.dialect.placeholder(2))
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e     = domain.Event{Type: t}
			payer string
			raw   []byte
		)
		if err := rows.Scan(&e.ConsensusTimestamp, &payer, &raw); err != nil {
			return nil, err
		}
		if e.PayerAccountID, err = domain.ParseEntityID(payer); err != nil {
			return nil, err
		}
		if e.Payload, err = domain.DecodePayload(t, raw); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(t domain.EntityType, row scanner) (domain.VersionedRecord, error) {
	var (
		rec   domain.VersionedRecord
		raw   []byte
		upper sql.NullInt64
	)
	if err := row.Scan(&rec.Key, &raw, &rec.Lower, &upper); err != nil {
		return rec, err
	}
	fields, err := domain.DecodeFields(t, raw)
	if err != nil {
		return rec, err
	}
	rec.Type = t
	rec.Fields = fields
	if upper.Valid {
		u := upper.Int64
		rec.Upper = &u
	}
	return rec, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestRecordFile(ctx context.Context, q querier) (*domain.RecordFile, error) {
	var (
		rf          domain.RecordFile
		prevHash    sql.NullString
		hapiVersion sql.NullString
		loadStart   sql.NullInt64
		loadEnd     sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT "index", name, consensus_start, consensus_end, hash, prev_hash, count, hapi_version, load_start, load_end
		FROM record_file
		ORDER BY "index" DESC
		LIMIT 1`).Scan(
		&rf.Index, &rf.Name, &rf.ConsensusStart, &rf.ConsensusEnd, &rf.Hash,
		&prevHash, &rf.Count, &hapiVersion, &loadStart, &loadEnd,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	rf.PrevHash = prevHash.String
	rf.HapiVersion = hapiVersion.String
	rf.LoadStart = loadStart.Int64
	rf.LoadEnd = loadEnd.Int64
	return &rf, nil
}
