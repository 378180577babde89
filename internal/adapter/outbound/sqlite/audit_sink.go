// Package sqlite provides a SQLite-backed audit sink for persistent
// security event storage.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	timestamp TIMESTAMP NOT NULL,
	severity TEXT NOT NULL,
	kind TEXT NOT NULL,
	request_id TEXT,
	client_ip TEXT,
	method TEXT,
	path TEXT,
	status INTEGER,
	threat_score REAL,
	threat_flags TEXT,
	auth_method TEXT,
	user_id TEXT,
	session_id TEXT,
	reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_kind ON audit_events(kind);
`

const insertEvent = `
INSERT INTO audit_events (
	id, timestamp, severity, kind, request_id, client_ip, method, path,
	status, threat_score, threat_flags, auth_method, user_id, session_id, reason
) VALUES (
	:id, :timestamp, :severity, :kind, :request_id, :client_ip, :method, :path,
	:status, :threat_score, :threat_flags, :auth_method, :user_id, :session_id, :reason
)`

// eventRow is the flattened database representation of an audit event.
type eventRow struct {
	ID          string    `db:"id"`
	Timestamp   time.Time `db:"timestamp"`
	Severity    string    `db:"severity"`
	Kind        string    `db:"kind"`
	RequestID   string    `db:"request_id"`
	ClientIP    string    `db:"client_ip"`
	Method      string    `db:"method"`
	Path        string    `db:"path"`
	Status      int       `db:"status"`
	ThreatScore float64   `db:"threat_score"`
	ThreatFlags string    `db:"threat_flags"`
	AuthMethod  string    `db:"auth_method"`
	UserID      string    `db:"user_id"`
	SessionID   string    `db:"session_id"`
	Reason      string    `db:"reason"`
}

func toRow(event audit.Event) eventRow {
	return eventRow{
		ID:          event.ID,
		Timestamp:   event.Timestamp,
		Severity:    string(event.Severity),
		Kind:        event.Kind,
		RequestID:   event.RequestID,
		ClientIP:    event.ClientIP,
		Method:      event.Method,
		Path:        event.Path,
		Status:      event.Status,
		ThreatScore: event.ThreatScore,
		ThreatFlags: strings.Join(event.ThreatFlags, ","),
		AuthMethod:  event.AuthMethod,
		UserID:      event.UserID,
		SessionID:   event.SessionID,
		Reason:      event.Reason,
	}
}

func fromRow(row eventRow) audit.Event {
	event := audit.Event{
		ID:          row.ID,
		Timestamp:   row.Timestamp,
		Severity:    audit.Severity(row.Severity),
		Kind:        row.Kind,
		RequestID:   row.RequestID,
		ClientIP:    row.ClientIP,
		Method:      row.Method,
		Path:        row.Path,
		Status:      row.Status,
		ThreatScore: row.ThreatScore,
		AuthMethod:  row.AuthMethod,
		UserID:      row.UserID,
		SessionID:   row.SessionID,
		Reason:      row.Reason,
	}
	if row.ThreatFlags != "" {
		event.ThreatFlags = strings.Split(row.ThreatFlags, ",")
	}
	return event
}

// AuditSink persists audit events to a SQLite database. Writes happen on
// a background goroutine fed by a bounded queue so Record never blocks
// the request path; queue overflow drops the event and counts it.
type AuditSink struct {
	db      *sqlx.DB
	queue   chan audit.Event
	dropped atomic.Uint64
	logger  *slog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewAuditSink opens (or creates) the database at path and initializes
// the schema. queueSize <= 0 defaults to 1024.
func NewAuditSink(path string, queueSize int, logger *slog.Logger) (*AuditSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}

	s := &AuditSink{
		db:       db,
		queue:    make(chan audit.Event, queueSize),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Record queues an event for persistence. Never blocks.
func (s *AuditSink) Record(ctx context.Context, event audit.Event) {
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
		s.logger.Debug("audit queue full, event dropped",
			"kind", event.Kind, "dropped_total", s.dropped.Load())
	}
}

// Flush is a no-op for the SQLite sink; each insert is durable once the
// writer goroutine has consumed it.
func (s *AuditSink) Flush(ctx context.Context) error {
	return nil
}

// Close stops the writer, drains queued events, and closes the database.
// Safe to call multiple times.
func (s *AuditSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped returns how many events were discarded on a full queue.
func (s *AuditSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Recent returns the most recent n events, newest first.
func (s *AuditSink) Recent(ctx context.Context, n int) ([]audit.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM audit_events ORDER BY timestamp DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query recent audit events: %w", err)
	}
	events := make([]audit.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, fromRow(row))
	}
	return events, nil
}

func (s *AuditSink) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.queue:
			s.insert(event)
		case <-s.stopChan:
			for {
				select {
				case event := <-s.queue:
					s.insert(event)
				default:
					return
				}
			}
		}
	}
}

func (s *AuditSink) insert(event audit.Event) {
	if _, err := s.db.NamedExec(insertEvent, toRow(event)); err != nil {
		s.logger.Error("insert audit event failed", "error", err, "kind", event.Kind)
	}
}

// Compile-time interface verification.
var _ audit.Sink = (*AuditSink)(nil)
