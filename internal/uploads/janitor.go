package uploads

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/thavelick/insight-magician-sub000/internal/observability"
)

// cronParser accepts standard 5-field expressions and descriptors like
// @hourly.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// tmpMaxAge is how long an orphaned temp file from an interrupted
// upload survives before the janitor removes it.
const tmpMaxAge = time.Hour

// TokenPurger removes expired login tokens. The janitor shares its
// schedule with upload cleanup so the app store does not need its own
// timer.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// JanitorConfig configures the cleanup job.
type JanitorConfig struct {
	Dir       string
	Retention time.Duration
	// Schedule is a cron expression or descriptor; defaults to @hourly.
	Schedule string
	Logger   *observability.Logger
	// Tokens is optional; nil skips token purging.
	Tokens TokenPurger
}

// Janitor periodically deletes uploads older than the retention window.
type Janitor struct {
	dir       string
	retention time.Duration
	schedule  cron.Schedule
	logger    *observability.Logger
	tokens    TokenPurger

	now func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewJanitor parses the schedule and returns a janitor ready to start.
func NewJanitor(cfg JanitorConfig) (*Janitor, error) {
	expr := cfg.Schedule
	if strings.TrimSpace(expr) == "" {
		expr = "@hourly"
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Janitor{
		dir:       cfg.Dir,
		retention: retention,
		schedule:  schedule,
		logger:    cfg.Logger.WithFields("component", "janitor"),
		tokens:    cfg.Tokens,
		now:       time.Now,
	}, nil
}

// Start launches the cleanup loop. It sweeps once immediately, then
// follows the schedule until the context is cancelled or Stop is
// called.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return
	}
	j.started = true
	ctx, j.cancel = context.WithCancel(ctx)
	j.mu.Unlock()

	j.wg.Add(1)
	go j.run(ctx)
}

// Stop halts the cleanup loop and waits for an in-flight sweep.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.started = false
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	j.sweepAndLog(ctx)
	for {
		next := j.schedule.Next(j.now())
		timer := time.NewTimer(next.Sub(j.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.sweepAndLog(ctx)
		}
	}
}

func (j *Janitor) sweepAndLog(ctx context.Context) {
	removed, err := j.Sweep(ctx)
	if err != nil {
		j.logger.Error(ctx, "cleanup sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info(ctx, "cleanup sweep removed stale uploads", "removed", removed)
	}
}

// Sweep deletes uploads past the retention window and orphaned temp
// files, then purges expired login tokens. It returns how many files
// were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, err
	}

	now := j.now()
	cutoff := now.Add(-j.retention)
	tmpCutoff := now.Add(-tmpMaxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		isUpload := hasAllowedExtension(name)
		isTmp := strings.HasPrefix(name, "incoming-") && strings.HasSuffix(name, ".tmp")
		if !isUpload && !isTmp {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		limit := cutoff
		if isTmp {
			limit = tmpCutoff
		}
		if !info.ModTime().Before(limit) {
			continue
		}

		if err := os.Remove(filepath.Join(j.dir, name)); err != nil {
			j.logger.Warn(ctx, "failed to remove stale upload", "filename", name, "error", err)
			continue
		}
		removed++
	}

	if j.tokens != nil {
		purged, err := j.tokens.PurgeExpiredTokens(ctx, now)
		if err != nil {
			j.logger.Warn(ctx, "failed to purge login tokens", "error", err)
		} else if purged > 0 {
			j.logger.Info(ctx, "purged expired login tokens", "purged", purged)
		}
	}

	return removed, nil
}
