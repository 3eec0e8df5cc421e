// Package refresh runs the periodic maintenance job: expired cache entries
// are pruned and live reference data is fetched again.
package refresh

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"contextanalyzer/internal/cache"
)

// DefaultSchedule runs the job daily at 03:00.
const DefaultSchedule = "0 3 * * *"

// ReferenceRefresher is satisfied by *pattern.Analyzer.
type ReferenceRefresher interface {
	RefreshReferenceData(ctx context.Context) error
}

// Result tracks what one run did.
type Result struct {
	Pruned    map[string]int
	Refreshed bool
	Errors    []string
}

type Job struct {
	reference ReferenceRefresher
	caches    []*cache.Manager
	logger    *zap.Logger
}

func NewJob(reference ReferenceRefresher, logger *zap.Logger, caches ...*cache.Manager) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	var live []*cache.Manager
	for _, c := range caches {
		if c != nil {
			live = append(live, c)
		}
	}
	return &Job{reference: reference, caches: live, logger: logger}
}

// RunOnce prunes every cache and refreshes reference data. A refresh failure
// is reported in the result; the previous tables stay in use.
func (j *Job) RunOnce(ctx context.Context) Result {
	result := Result{Pruned: make(map[string]int, len(j.caches))}
	for _, c := range j.caches {
		result.Pruned[c.Name()] += c.Prune()
	}
	if j.reference != nil {
		if err := j.reference.RefreshReferenceData(ctx); err != nil {
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Refreshed = true
		}
	}
	return result
}

// FormatSummary returns a one-line description of a run.
func FormatSummary(result Result) string {
	names := make([]string, 0, len(result.Pruned))
	total := 0
	for name, n := range result.Pruned {
		names = append(names, name)
		total += n
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, result.Pruned[name]))
	}
	msg := fmt.Sprintf("pruned %d expired cache entries", total)
	if len(parts) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(parts, ", "))
	}
	if result.Refreshed {
		msg += ", reference data refreshed"
	}
	if len(result.Errors) > 0 {
		msg += "\nWarnings:\n" + strings.Join(result.Errors, "\n")
	}
	return msg
}

// ParseSchedule accepts a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Start runs job on schedule until ctx is cancelled. An empty schedule
// disables the job and returns false.
func Start(ctx context.Context, expr string, job *Job) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		job.logger.Info("refresh disabled (refresh_schedule not set)")
		return false, nil
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return false, err
	}
	job.logger.Info("refresh scheduled", zap.String("cron", expr))

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			job.logger.Debug("next refresh", zap.Time("at", next))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			result := job.RunOnce(ctx)
			job.logger.Info("refresh complete", zap.String("summary", FormatSummary(result)))
		}
	}()
	return true, nil
}
