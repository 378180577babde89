// Package audit provides file and SQL backed audit sinks with JSON Lines
// output, daily rotation, and retention cleanup.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
)

// FileConfig holds configuration for the file-based audit sink.
type FileConfig struct {
	// Dir is the directory where audit files are stored.
	Dir string
	// RetentionDays is the number of days to keep audit files (default 7).
	RetentionDays int
	// QueueSize bounds the in-flight event queue (default 1024).
	QueueSize int
}

// FileSink writes audit events as JSON Lines to daily files.
// Record is non-blocking: events are queued and written by a background
// goroutine; when the queue is full the event is dropped and counted.
type FileSink struct {
	dir           string
	retentionDays int
	queue         chan audit.Event
	dropped       atomic.Uint64
	logger        *slog.Logger

	mu      sync.Mutex
	file    *os.File
	date    string
	closed  bool

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// auditFilePattern matches audit log filenames: audit-YYYY-MM-DD.log
var auditFilePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})\.log$`)

// NewFileSink creates a file-based audit sink. It creates the directory
// with restricted permissions, opens today's file, runs retention cleanup,
// and starts the writer goroutine.
func NewFileSink(cfg FileConfig, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	s := &FileSink{
		dir:           cfg.Dir,
		retentionDays: cfg.RetentionDays,
		queue:         make(chan audit.Event, cfg.QueueSize),
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
	if err := s.openForDate(time.Now().UTC().Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	s.runRetention()

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// Record queues an event for writing. It never blocks and never fails
// the request it describes; on a full queue the event is dropped.
func (s *FileSink) Record(ctx context.Context, event audit.Event) {
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
		s.logger.Debug("audit queue full, event dropped",
			"kind", event.Kind, "dropped_total", s.dropped.Load())
	}
}

// Flush syncs the current file to disk.
func (s *FileSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Sync()
	}
	return nil
}

// Close stops the writer, drains queued events, and closes the file.
// Safe to call multiple times.
func (s *FileSink) Close() error {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		_ = s.file.Sync()
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// Dropped returns how many events were discarded on a full queue.
func (s *FileSink) Dropped() uint64 {
	return s.dropped.Load()
}

// writeLoop consumes the queue until Close, then drains what remains.
// Retention cleanup runs hourly on the same goroutine.
func (s *FileSink) writeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.queue:
			s.writeEvent(event)
		case <-ticker.C:
			s.runRetention()
		case <-s.stopChan:
			for {
				select {
				case event := <-s.queue:
					s.writeEvent(event)
				default:
					return
				}
			}
		}
	}
}

// writeEvent appends one event as a JSON line, rotating on date change.
func (s *FileSink) writeEvent(event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	date := event.Timestamp.UTC().Format("2006-01-02")
	if date != s.date {
		if err := s.rotateLocked(date); err != nil {
			s.logger.Error("audit rotation failed", "error", err)
			return
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal audit event failed", "error", err)
		return
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		s.logger.Error("write audit event failed", "error", err)
	}
}

func (s *FileSink) openForDate(date string) error {
	path := filepath.Join(s.dir, fmt.Sprintf("audit-%s.log", date))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	s.file = f
	s.date = date
	return nil
}

// rotateLocked closes the current file and opens one for the new date.
// Must be called with s.mu held.
func (s *FileSink) rotateLocked(date string) error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}
	return s.openForDate(date)
}

// runRetention deletes audit files older than the retention period.
func (s *FileSink) runRetention() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("audit retention: read directory failed", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, e := range entries {
		matches := auditFilePattern.FindStringSubmatch(e.Name())
		if matches == nil {
			continue
		}
		fileDate, err := time.Parse("2006-01-02", matches[1])
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.logger.Error("audit retention: delete failed", "file", e.Name(), "error", err)
			} else {
				deleted++
			}
		}
	}
	if deleted > 0 {
		s.logger.Info("audit retention completed", "deleted", deleted)
	}
}

// Compile-time interface verification.
var _ audit.Sink = (*FileSink)(nil)
