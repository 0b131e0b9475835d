package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/logging"
)

// RecordFile is one decoded record file: its mutations and append-only events
// in stream order and its checkpoint descriptor.
type RecordFile struct {
	Meta      domain.RecordFile
	Mutations []domain.Mutation
	Events    []domain.Event
}

// Stream yields decoded record files in order. Next returns io.EOF once the
// stream is exhausted.
type Stream interface {
	Next(ctx context.Context) (*RecordFile, error)
}

type line struct {
	Type       string             `json:"type,omitempty"`
	Key        string             `json:"key,omitempty"`
	Timestamp  int64              `json:"timestamp"`
	Fields     json.RawMessage    `json:"fields,omitempty"`
	Event      string             `json:"event,omitempty"`
	Payer      *domain.EntityID   `json:"payer,omitempty"`
	Payload    json.RawMessage    `json:"payload,omitempty"`
	RecordFile *domain.RecordFile `json:"record_file,omitempty"`
}

const maxLineBytes = 16 << 20

// Decode reads one record file in NDJSON form: one mutation or event per line
// and a final {"record_file": {...}} line. Event lines carry "event" in place
// of "type".
func Decode(r io.Reader) (*RecordFile, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out RecordFile
	var sawMeta bool
	for n := 1; scanner.Scan(); n++ {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		if sawMeta {
			return nil, fmt.Errorf("%w: line %d follows the record_file line", domain.ErrStructural, n)
		}

		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrStructural, n, err)
		}
		if l.RecordFile != nil {
			out.Meta = *l.RecordFile
			sawMeta = true
			continue
		}
		if l.Event != "" {
			e, err := decodeEvent(l)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			out.Events = append(out.Events, e)
			continue
		}

		t, err := domain.ParseEntityType(l.Type)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		fields, err := domain.DecodeFields(t, l.Fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out.Mutations = append(out.Mutations, domain.Mutation{
			Type:      t,
			Key:       l.Key,
			Timestamp: l.Timestamp,
			Fields:    fields,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	if !sawMeta {
		return nil, fmt.Errorf("%w: missing record_file line", domain.ErrStructural)
	}
	if out.Meta.Count == 0 {
		out.Meta.Count = countTransactions(&out)
	}
	return &out, nil
}

func decodeEvent(l line) (domain.Event, error) {
	t, err := domain.ParseEventType(l.Event)
	if err != nil {
		return domain.Event{}, err
	}
	payload, err := domain.DecodePayload(t, l.Payload)
	if err != nil {
		return domain.Event{}, err
	}
	e := domain.Event{Type: t, ConsensusTimestamp: l.Timestamp, Payload: payload}
	if l.Payer != nil {
		e.PayerAccountID = *l.Payer
	}
	return e, nil
}

// countTransactions prefers transaction events and falls back to mutations
// for files that carry none.
func countTransactions(rf *RecordFile) int64 {
	var n int64
	for _, e := range rf.Events {
		if e.Type == domain.EventTransaction {
			n++
		}
	}
	if n == 0 {
		n = int64(len(rf.Mutations))
	}
	return n
}

// Encode writes a record file in the form Decode reads.
func Encode(w io.Writer, rf *RecordFile) error {
	enc := json.NewEncoder(w)
	for _, m := range rf.Mutations {
		fields, err := json.Marshal(m.Fields)
		if err != nil {
			return err
		}
		if err := enc.Encode(line{Type: string(m.Type), Key: m.Key, Timestamp: m.Timestamp, Fields: fields}); err != nil {
			return err
		}
	}
	for _, e := range rf.Events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		payer := e.PayerAccountID
		if err := enc.Encode(line{Event: string(e.Type), Timestamp: e.ConsensusTimestamp, Payer: &payer, Payload: payload}); err != nil {
			return err
		}
	}
	meta := rf.Meta
	return enc.Encode(struct {
		RecordFile *domain.RecordFile `json:"record_file"`
	}{&meta})
}

// DirectoryStream reads *.ndjson record files from a directory in name order.
// In follow mode it polls for new files until the context ends.
type DirectoryStream struct {
	dir          string
	follow       bool
	pollInterval time.Duration
	logger       *logging.ComponentLogger

	seen  map[string]bool
	queue []string
}

func NewDirectoryStream(dir string, follow bool, pollInterval time.Duration, logger *logging.ComponentLogger) *DirectoryStream {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DirectoryStream{
		dir:          dir,
		follow:       follow,
		pollInterval: pollInterval,
		logger:       logger.With("source"),
		seen:         make(map[string]bool),
	}
}

func (d *DirectoryStream) Next(ctx context.Context) (*RecordFile, error) {
	for len(d.queue) == 0 {
		if err := d.scan(); err != nil {
			return nil, err
		}
		if len(d.queue) > 0 {
			break
		}
		if !d.follow {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}

	name := d.queue[0]
	d.queue = d.queue[1:]
	return d.read(name)
}

func (d *DirectoryStream) scan() error {
	matches, err := filepath.Glob(filepath.Join(d.dir, "*.ndjson"))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", d.dir, err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if !d.seen[m] {
			d.seen[m] = true
			d.queue = append(d.queue, m)
		}
	}
	return nil
}

func (d *DirectoryStream) read(path string) (*RecordFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	rf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if rf.Meta.Name == "" {
		rf.Meta.Name = strings.TrimSuffix(filepath.Base(path), ".ndjson")
	}
	d.logger.Debug().
		Str("file", filepath.Base(path)).
		Int("mutations", len(rf.Mutations)).
		Int("events", len(rf.Events)).
		Msg("Decoded record file")
	return rf, nil
}

// SliceStream replays record files held in memory.
type SliceStream struct {
	files []*RecordFile
}

func NewSliceStream(files ...*RecordFile) *SliceStream {
	return &SliceStream{files: files}
}

func (s *SliceStream) Next(ctx context.Context) (*RecordFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.files) == 0 {
		return nil, io.EOF
	}
	rf := s.files[0]
	s.files = s.files[1:]
	return rf, nil
}
