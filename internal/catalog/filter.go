package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyluth/atelier/pkg/blackboard"
)

// Filter narrows a project listing. All criteria are ANDed; zero values
// match everything.
type Filter struct {
	SinceMs   int64
	UntilMs   int64
	TitleGlob string // matched case-insensitively against the project title
	Stage     blackboard.Stage
	Health    blackboard.ProjectHealth
}

// Matches reports whether p satisfies every criterion.
func (f *Filter) Matches(p *blackboard.Project) bool {
	if f == nil {
		return true
	}
	if f.SinceMs > 0 && p.CreatedAtMs < f.SinceMs {
		return false
	}
	if f.UntilMs > 0 && p.CreatedAtMs > f.UntilMs {
		return false
	}
	if f.TitleGlob != "" {
		matched, err := filepath.Match(strings.ToLower(f.TitleGlob), strings.ToLower(p.Title))
		if err != nil || !matched {
			return false
		}
	}
	if f.Stage != "" && p.Stage != f.Stage {
		return false
	}
	if f.Health != "" && p.Health != f.Health {
		return false
	}
	return true
}

// Validate rejects malformed globs, stages and health values.
func (f *Filter) Validate() error {
	if f.TitleGlob != "" {
		if _, err := filepath.Match(f.TitleGlob, ""); err != nil {
			return fmt.Errorf("invalid title pattern %q: %w", f.TitleGlob, err)
		}
	}
	if f.Stage != "" {
		if err := f.Stage.Validate(); err != nil {
			return err
		}
	}
	switch f.Health {
	case "", blackboard.HealthHealthy, blackboard.HealthStalled, blackboard.HealthCanceled:
	default:
		return fmt.Errorf("invalid health %q (expected healthy, stalled or canceled)", f.Health)
	}
	return nil
}

// ParseTime parses a time specification into Unix milliseconds.
// Accepts a duration relative to now ("1h30m" means 90 minutes ago) or an
// RFC3339 timestamp.
func ParseTime(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}
	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2026-01-02T15:04:05Z')", spec)
}

// ParseRange parses --since and --until. Zero means unbounded.
func ParseRange(since, until string, now time.Time) (int64, int64, error) {
	var sinceMs, untilMs int64
	var err error

	if since != "" {
		if sinceMs, err = ParseTime(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if untilMs, err = ParseTime(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}
	if sinceMs > 0 && untilMs > 0 && sinceMs >= untilMs {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}
	return sinceMs, untilMs, nil
}
