package security

import (
	"sync"
	"time"
)

// Tracker defaults.
const (
	// DefaultRequestFrequencyThreshold is the requests-per-minute rate above
	// which a client is flagged.
	DefaultRequestFrequencyThreshold = 100
	// DefaultNewEndpointsThreshold is the distinct-endpoints-per-hour count
	// above which a client is flagged for reconnaissance.
	DefaultNewEndpointsThreshold = 10

	// profileWindowSize bounds the per-profile sliding window of request times.
	profileWindowSize = 100
	// frequencySampleSize is how many trailing requests the frequency rule
	// measures across.
	frequencySampleSize = 10
	// errorRateThreshold is the error fraction above which a client is flagged.
	errorRateThreshold = 0.5
	// reconWindow is the look-back period for endpoint reconnaissance.
	reconWindow = time.Hour
)

// profile tracks the observed behavior of one client fingerprint.
// Profiles are created lazily and never explicitly deleted; the window and
// endpoint maps are trimmed so memory stays bounded by the key space.
type profile struct {
	firstSeen time.Time
	requests  int64
	errors    int64
	// endpoints maps each touched path to the last time it was requested.
	endpoints map[string]time.Time
	// window holds the trailing request timestamps, oldest first, capped at
	// profileWindowSize entries.
	window []time.Time
}

// TrackerConfig holds behavioral scoring thresholds.
type TrackerConfig struct {
	// RequestFrequencyThreshold is requests/minute. Default: 100.
	RequestFrequencyThreshold int
	// NewEndpointsThreshold is distinct endpoints/hour. Default: 10.
	NewEndpointsThreshold int
}

// Tracker maintains behavioral profiles keyed by client fingerprint.
// It is shared mutable state touched by every request goroutine and is
// guarded by a single mutex.
type Tracker struct {
	mu       sync.Mutex
	profiles map[uint64]*profile
	cfg      TrackerConfig
	// now is replaceable in tests.
	now func() time.Time
}

// NewTracker creates a Tracker with the given thresholds.
// Zero thresholds fall back to defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.RequestFrequencyThreshold <= 0 {
		cfg.RequestFrequencyThreshold = DefaultRequestFrequencyThreshold
	}
	if cfg.NewEndpointsThreshold <= 0 {
		cfg.NewEndpointsThreshold = DefaultNewEndpointsThreshold
	}
	return &Tracker{
		profiles: make(map[uint64]*profile),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Observe updates the profile for ctx's fingerprint and returns the
// behavioral score contribution, adding flags to ctx as rules fire.
func (t *Tracker) Observe(ctx *Context) float64 {
	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.profileLocked(ctx.Fingerprint(), now)
	p.requests++
	p.endpoints[ctx.Path] = now
	p.window = append(p.window, now)
	if len(p.window) > profileWindowSize {
		p.window = p.window[len(p.window)-profileWindowSize:]
	}

	var score float64

	if t.frequencyExceededLocked(p) {
		score += scoreHighFrequency
		ctx.AddFlag(FlagHighRequestFrequency)
	}

	if p.requests > 0 && float64(p.errors)/float64(p.requests) > errorRateThreshold {
		score += scoreHighErrorRate
		ctx.AddFlag(FlagHighErrorRate)
	}

	if t.reconDetectedLocked(p, now) {
		score += scoreEndpointRecon
		ctx.AddFlag(FlagEndpointRecon)
	}

	return score
}

// RecordError increments the profile's error counter for the fingerprint.
func (t *Tracker) RecordError(ctx *Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.profileLocked(ctx.Fingerprint(), t.now().UTC())
	p.errors++
}

// Size returns the number of tracked profiles. Useful for health checks.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.profiles)
}

// profileLocked returns the profile for a fingerprint, creating it lazily.
// Must be called with the lock held.
func (t *Tracker) profileLocked(fp uint64, now time.Time) *profile {
	p, ok := t.profiles[fp]
	if !ok {
		p = &profile{
			firstSeen: now,
			endpoints: make(map[string]time.Time),
		}
		t.profiles[fp] = p
	}
	return p
}

// frequencyExceededLocked reports whether the span between the 10th-most-recent
// and the most recent request implies a rate above the threshold.
// Must be called with the lock held.
func (t *Tracker) frequencyExceededLocked(p *profile) bool {
	if len(p.window) < frequencySampleSize {
		return false
	}
	latest := p.window[len(p.window)-1]
	tenth := p.window[len(p.window)-frequencySampleSize]
	span := latest.Sub(tenth)
	if span <= 0 {
		// Ten requests in the same instant is always above any sane threshold.
		return true
	}
	perMinute := float64(frequencySampleSize) / span.Minutes()
	return perMinute > float64(t.cfg.RequestFrequencyThreshold)
}

// reconDetectedLocked reports whether the client touched more distinct
// endpoints within the last hour than the threshold allows. The profile was
// just updated, so it always has at least one request inside the window here.
// Must be called with the lock held.
func (t *Tracker) reconDetectedLocked(p *profile, now time.Time) bool {
	cutoff := now.Add(-reconWindow)
	distinct := 0
	for path, last := range p.endpoints {
		if last.After(cutoff) {
			distinct++
		} else {
			// Trim stale endpoints so the map stays bounded.
			delete(p.endpoints, path)
		}
	}
	return distinct > t.cfg.NewEndpointsThreshold
}
