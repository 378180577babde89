package security

import (
	"reflect"
	"testing"
	"time"
)

func newTestContext(method, path string, headers map[string]string) *Context {
	return NewContext("req-1", method, path, "203.0.113.10", "test-agent/1.0", headers)
}

func TestDetectorScore_PatternLocations(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		headers   map[string]string
		body      string
		wantScore float64
		wantFlags []string
	}{
		{
			name:      "clean request scores zero",
			path:      "/api/ask",
			body:      `{"question":"what is the capital of France"}`,
			wantScore: 0,
			wantFlags: []string{},
		},
		{
			name:      "sql injection in path",
			path:      "/api/items?q=union select password from users",
			wantScore: scorePathMatch,
			wantFlags: []string{"pattern_sql_injection_path"},
		},
		{
			name:      "sql injection in body scores higher than path",
			path:      "/api/ask",
			body:      "union select password from users",
			wantScore: scoreBodyMatch,
			wantFlags: []string{"pattern_sql_injection_body"},
		},
		{
			name: "header matches are additive per value",
			path: "/api/ask",
			headers: map[string]string{
				"X-One":   "<script>alert(1)</script>",
				"X-Two":   "<script>alert(2)</script>",
				"X-Three": "<script>alert(3)</script>",
			},
			wantScore: 3 * scoreHeaderMatch,
			wantFlags: []string{"pattern_xss_header"},
		},
		{
			name:      "path traversal in path",
			path:      "/files/../../etc/passwd",
			wantScore: 2 * scorePathMatch, // ../ and /etc/passwd both match
			wantFlags: []string{"pattern_path_traversal_path"},
		},
		{
			name:      "command injection in body",
			path:      "/api/ask",
			body:      `{"cmd":"; rm -rf /"}`,
			wantScore: scoreBodyMatch,
			wantFlags: []string{"pattern_command_injection_body"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := NewDetector(nil) // no tracker: pattern scoring only
			ctx := newTestContext("POST", tt.path, tt.headers)

			got := det.Score(ctx, []byte(tt.body))
			if got != tt.wantScore {
				t.Errorf("Score() = %v, want %v (flags %v)", got, tt.wantScore, ctx.Flags())
			}
			if len(tt.wantFlags) > 0 || len(ctx.Flags()) > 0 {
				if !reflect.DeepEqual(ctx.Flags(), tt.wantFlags) {
					t.Errorf("Flags() = %v, want %v", ctx.Flags(), tt.wantFlags)
				}
			}
			if ctx.ThreatScore != got {
				t.Errorf("ctx.ThreatScore = %v, want %v", ctx.ThreatScore, got)
			}
		})
	}
}

func TestDetectorScore_Deterministic(t *testing.T) {
	// With an empty behavioral history, two identical calls must produce
	// identical scores and flag sets.
	body := []byte(`"; DROP TABLE users;"`)

	det1 := NewDetector(NewTracker(TrackerConfig{}))
	ctx1 := newTestContext("POST", "/api/ask", nil)
	score1 := det1.Score(ctx1, body)

	det2 := NewDetector(NewTracker(TrackerConfig{}))
	ctx2 := newTestContext("POST", "/api/ask", nil)
	score2 := det2.Score(ctx2, body)

	if score1 != score2 {
		t.Errorf("scores differ: %v vs %v", score1, score2)
	}
	if !reflect.DeepEqual(ctx1.Flags(), ctx2.Flags()) {
		t.Errorf("flag sets differ: %v vs %v", ctx1.Flags(), ctx2.Flags())
	}
	if score1 == 0 {
		t.Error("expected a non-zero score for a SQL injection body")
	}
}

func TestTracker_HighRequestFrequency(t *testing.T) {
	tracker := NewTracker(TrackerConfig{RequestFrequencyThreshold: 100})
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	clock := base
	tracker.now = func() time.Time { return clock }

	det := NewDetector(tracker)

	// Nine requests spaced 1ms apart: below the 10-request sample size.
	for i := 0; i < 9; i++ {
		ctx := newTestContext("GET", "/api/ask", nil)
		det.Score(ctx, nil)
		if ctx.HasFlag(FlagHighRequestFrequency) {
			t.Fatalf("request %d flagged before sample size reached", i)
		}
		clock = clock.Add(time.Millisecond)
	}

	// The 10th request: 10 requests across 9ms is far above 100/min.
	ctx := newTestContext("GET", "/api/ask", nil)
	score := det.Score(ctx, nil)
	if !ctx.HasFlag(FlagHighRequestFrequency) {
		t.Error("expected high_request_frequency flag")
	}
	if score < scoreHighFrequency {
		t.Errorf("score = %v, want at least %v", score, scoreHighFrequency)
	}
}

func TestTracker_SlowTrafficNotFlagged(t *testing.T) {
	tracker := NewTracker(TrackerConfig{RequestFrequencyThreshold: 100})
	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	det := NewDetector(tracker)

	// 20 requests spaced 1s apart: 10 requests per 9s = ~67/min, under 100.
	for i := 0; i < 20; i++ {
		ctx := newTestContext("GET", "/api/ask", nil)
		det.Score(ctx, nil)
		if ctx.HasFlag(FlagHighRequestFrequency) {
			t.Fatalf("request %d flagged at ~67 req/min", i)
		}
		clock = clock.Add(time.Second)
	}
}

func TestTracker_HighErrorRate(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})
	det := NewDetector(tracker)

	// Two requests, both errors: rate 1.0 > 0.5.
	for i := 0; i < 2; i++ {
		ctx := newTestContext("GET", "/api/ask", nil)
		det.Score(ctx, nil)
		det.RecordError(ctx)
	}

	ctx := newTestContext("GET", "/api/ask", nil)
	score := det.Score(ctx, nil)
	if !ctx.HasFlag(FlagHighErrorRate) {
		t.Error("expected high_error_rate flag")
	}
	if score < scoreHighErrorRate {
		t.Errorf("score = %v, want at least %v", score, scoreHighErrorRate)
	}
}

func TestTracker_EndpointReconnaissance(t *testing.T) {
	tracker := NewTracker(TrackerConfig{NewEndpointsThreshold: 10})
	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	det := NewDetector(tracker)

	// Touch 11 distinct endpoints within the hour. Spacing the requests a
	// minute apart keeps the frequency rule quiet.
	flagged := false
	for i := 0; i < 11; i++ {
		ctx := newTestContext("GET", "/api/endpoint-"+string(rune('a'+i)), nil)
		det.Score(ctx, nil)
		flagged = ctx.HasFlag(FlagEndpointRecon)
		clock = clock.Add(time.Minute)
	}
	if !flagged {
		t.Error("expected endpoint_reconnaissance flag after 11 distinct endpoints")
	}
}

func TestTracker_StaleEndpointsExpire(t *testing.T) {
	tracker := NewTracker(TrackerConfig{NewEndpointsThreshold: 10})
	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	det := NewDetector(tracker)

	// 11 endpoints, then jump two hours ahead: the old touches fall out of
	// the window and a single fresh endpoint must not flag.
	for i := 0; i < 11; i++ {
		ctx := newTestContext("GET", "/api/endpoint-"+string(rune('a'+i)), nil)
		det.Score(ctx, nil)
	}
	clock = clock.Add(2 * time.Hour)

	ctx := newTestContext("GET", "/api/fresh", nil)
	det.Score(ctx, nil)
	if ctx.HasFlag(FlagEndpointRecon) {
		t.Error("stale endpoints should not count toward reconnaissance")
	}
}

func TestTracker_FingerprintsAreIsolated(t *testing.T) {
	tracker := NewTracker(TrackerConfig{})
	det := NewDetector(tracker)

	// Errors from one client must not taint another.
	for i := 0; i < 3; i++ {
		bad := NewContext("r", "GET", "/x", "198.51.100.1", "bad-agent", nil)
		det.Score(bad, nil)
		det.RecordError(bad)
	}

	good := NewContext("r", "GET", "/x", "198.51.100.2", "good-agent", nil)
	det.Score(good, nil)
	if good.HasFlag(FlagHighErrorRate) {
		t.Error("error rate leaked across fingerprints")
	}
	if tracker.Size() != 2 {
		t.Errorf("tracker.Size() = %d, want 2", tracker.Size())
	}
}

func TestContext_Fingerprint(t *testing.T) {
	long := make([]byte, 120)
	for i := range long {
		long[i] = 'a'
	}
	a := NewContext("r", "GET", "/", "10.0.0.1", string(long), nil)
	b := NewContext("r", "GET", "/", "10.0.0.1", string(long[:50]), nil)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should only use the first 50 user-agent characters")
	}

	c := NewContext("r", "GET", "/", "10.0.0.2", string(long), nil)
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different client IPs must produce different fingerprints")
	}
}
