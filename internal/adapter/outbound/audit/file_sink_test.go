package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/audit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileConfig{Dir: dir}, nil)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	ctx := context.Background()
	for _, kind := range []string{audit.KindRequest, audit.KindThreatBlocked, audit.KindAuthFailure} {
		event := audit.NewEvent(audit.SeverityInfo, kind)
		event.ClientIP = "10.0.0.1"
		sink.Record(ctx, event)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	path := filepath.Join(dir, "audit-"+time.Now().UTC().Format("2006-01-02")+".log")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var kinds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event audit.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		if event.ID == "" {
			t.Error("event written without ID")
		}
		kinds = append(kinds, event.Kind)
	}
	if len(kinds) != 3 {
		t.Fatalf("wrote %d events, want 3", len(kinds))
	}
	if kinds[0] != audit.KindRequest || kinds[2] != audit.KindAuthFailure {
		t.Errorf("kinds = %v, wrong order", kinds)
	}
}

func TestFileSinkCloseIsIdempotent(t *testing.T) {
	sink, err := NewFileSink(FileConfig{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestFileSinkRetention(t *testing.T) {
	dir := t.TempDir()

	// A file well past retention and one from today.
	stale := filepath.Join(dir, "audit-2020-01-01.log")
	if err := os.WriteFile(stale, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	unrelated := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(unrelated, []byte("keep"), 0600); err != nil {
		t.Fatal(err)
	}

	sink, err := NewFileSink(FileConfig{Dir: dir, RetentionDays: 7}, nil)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	defer sink.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale audit file survived retention")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("retention deleted a non-audit file")
	}
}
