package storage

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/ar-conmit/hedera-mirror-node/domain"
)

//go:embed schema.sql.tmpl
var schemaFS embed.FS

var schemaTemplate = template.Must(template.ParseFS(schemaFS, "schema.sql.tmpl"))

func (s *Store) schema() (string, error) {
	var buf bytes.Buffer
	err := schemaTemplate.Execute(&buf, struct {
		Types  []domain.EntityType
		Events []domain.EventType
		JSON   string
	}{domain.EntityTypes(), domain.EventTypes(), s.dialect.jsonType()})
	if err != nil {
		return "", fmt.Errorf("failed to render schema: %w", err)
	}
	return buf.String(), nil
}

// Migrate creates the record file table, the current and history tables of
// every entity type and the append-only event tables. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Info().Msg("Initializing database schema")

	content, err := s.schema()
	if err != nil {
		return err
	}

	for i, stmt := range splitSQLStatements(content) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isComment(stmt) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if isIgnorableError(err) {
				s.logger.Debug().
					Int("statement", i).
					Err(err).
					Msg("Ignoring expected error")
				continue
			}
			return fmt.Errorf("failed to execute statement %d: %w", i, err)
		}
	}

	if err := s.verifySchema(ctx); err != nil {
		return fmt.Errorf("schema verification failed: %w", err)
	}

	s.logger.Info().Msg("Database schema initialized successfully")
	return nil
}

// splitSQLStatements splits on semicolons outside single-quoted strings.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false

	for _, ch := range sql {
		current.WriteRune(ch)
		switch ch {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				statements = append(statements, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}

// isComment reports whether a statement consists only of comment lines.
func isComment(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

func isIgnorableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"already exists", "duplicate key"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// verifySchema checks that every table the committer writes exists.
func (s *Store) verifySchema(ctx context.Context) error {
	tables := []string{"record_file"}
	for _, t := range domain.EntityTypes() {
		tables = append(tables, string(t), t.HistoryTable())
	}
	for _, t := range domain.EventTypes() {
		tables = append(tables, string(t))
	}

	query := `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`
	if !s.dialect.postgres {
		query = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`
	}

	for _, table := range tables {
		var exists bool
		if err := s.db.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}
