package security

import (
	"fmt"
	"regexp"
)

// Score weights for pattern matches by location. Matches are additive and
// not deduplicated: three header values matching the same category add 9.0.
const (
	scorePathMatch   = 5.0
	scoreHeaderMatch = 3.0
	scoreBodyMatch   = 7.0
)

// Behavioral score weights.
const (
	scoreHighFrequency = 5.0
	scoreHighErrorRate = 3.0
	scoreEndpointRecon = 4.0
)

// Behavioral flag names.
const (
	FlagHighRequestFrequency = "high_request_frequency"
	FlagHighErrorRate        = "high_error_rate"
	FlagEndpointRecon        = "endpoint_reconnaissance"
)

// patternCategory groups related attack signatures.
type patternCategory struct {
	name     string
	patterns []*regexp.Regexp
}

// compilePatterns builds the category tables. All patterns are case-insensitive
// and compiled once at construction time (same approach as a scanner that
// pre-compiles its signature set for minimal per-request overhead).
func compilePatterns() []patternCategory {
	raw := []struct {
		name     string
		patterns []string
	}{
		{
			name: "sql_injection",
			patterns: []string{
				`(?i)union\s+select`,
				`(?i)insert\s+into`,
				`(?i)drop\s+table`,
				`(?i)delete\s+from`,
				`(?i)update\s+\w+\s+set`,
				`(?i)exec(\s|\+)+(s|x)p\w+`,
				`(?i)'\s*or\s+'?\d+'?\s*=\s*'?\d+`,
				`(?i);\s*--`,
				`(?i)'\s*;\s*drop`,
			},
		},
		{
			name: "xss",
			patterns: []string{
				`(?i)<script[^>]*>`,
				`(?i)javascript\s*:`,
				`(?i)on(error|load|click|mouseover)\s*=`,
				`(?i)<iframe[^>]*>`,
				`(?i)document\.(cookie|write)`,
				`(?i)eval\s*\(`,
			},
		},
		{
			name: "path_traversal",
			patterns: []string{
				`\.\./`,
				`\.\.\\`,
				`(?i)%2e%2e[/\\]`,
				`(?i)%2e%2e%2f`,
				`(?i)/etc/(passwd|shadow)`,
				`(?i)\\windows\\system32`,
			},
		},
		{
			name: "command_injection",
			patterns: []string{
				`(?i);\s*(ls|cat|rm|wget|curl|nc|bash|sh)\b`,
				`(?i)\|\s*(ls|cat|rm|wget|curl|nc|bash|sh)\b`,
				"(?i)`[^`]*`",
				`(?i)\$\([^)]*\)`,
				`(?i)&&\s*(ls|cat|rm|wget|curl)\b`,
			},
		},
	}

	categories := make([]patternCategory, 0, len(raw))
	for _, rc := range raw {
		compiled := make([]*regexp.Regexp, 0, len(rc.patterns))
		for _, p := range rc.patterns {
			compiled = append(compiled, regexp.MustCompile(p))
		}
		categories = append(categories, patternCategory{name: rc.name, patterns: compiled})
	}
	return categories
}

// Detector scores requests for threat signals. Pattern scoring is pure;
// behavioral scoring mutates the shared Tracker for the caller's fingerprint.
type Detector struct {
	categories []patternCategory
	tracker    *Tracker
	rules      *RuleSet // optional CEL custom rules, may be nil
}

// NewDetector creates a Detector with the built-in pattern tables and the
// given behavioral tracker.
func NewDetector(tracker *Tracker) *Detector {
	return &Detector{
		categories: compilePatterns(),
		tracker:    tracker,
	}
}

// SetRules attaches an optional custom rule set evaluated on every request.
func (d *Detector) SetRules(rules *RuleSet) {
	d.rules = rules
}

// Score computes the additive threat score for a request and records the
// matching flags on ctx. Given identical inputs and an empty behavioral
// history, Score is deterministic.
func (d *Detector) Score(ctx *Context, body []byte) float64 {
	score := d.scorePatterns(ctx, body)

	if d.rules != nil {
		score += d.rules.Evaluate(ctx)
	}

	if d.tracker != nil {
		score += d.tracker.Observe(ctx)
	}

	ctx.ThreatScore = score
	return score
}

// RecordError tracks a failed response (4xx/5xx) against the client's
// behavioral profile. Called by the gateway after the response is known.
func (d *Detector) RecordError(ctx *Context) {
	if d.tracker != nil {
		d.tracker.RecordError(ctx)
	}
}

// scorePatterns runs every category against the path, each header value, and
// the body. Each match adds its location weight and a deduplicated flag
// pattern_<category>_<location>.
func (d *Detector) scorePatterns(ctx *Context, body []byte) float64 {
	var score float64
	bodyStr := string(body)

	for _, cat := range d.categories {
		for _, re := range cat.patterns {
			if re.MatchString(ctx.Path) {
				score += scorePathMatch
				ctx.AddFlag(fmt.Sprintf("pattern_%s_path", cat.name))
			}
			for _, value := range ctx.Headers {
				if re.MatchString(value) {
					score += scoreHeaderMatch
					ctx.AddFlag(fmt.Sprintf("pattern_%s_header", cat.name))
				}
			}
			if bodyStr != "" && re.MatchString(bodyStr) {
				score += scoreBodyMatch
				ctx.AddFlag(fmt.Sprintf("pattern_%s_body", cat.name))
			}
		}
	}
	return score
}
