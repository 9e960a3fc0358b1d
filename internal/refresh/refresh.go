package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/observability"
)

// Target is implemented by app.Session. Declared here to keep refresh free of an app import.
type Target interface {
	HasReading() bool
	Refresh(ctx context.Context) (models.WeatherReading, error)
}

// Refresher re-fetches the displayed city on a cron schedule.
type Refresher struct {
	target  Target
	timeout time.Duration
	logger  *zap.Logger
	cron    *cron.Cron
}

// New parses schedule (standard five-field cron or a descriptor like "@every 10m")
// and returns a Refresher that is not yet running. timeout bounds each run.
func New(target Target, schedule string, timeout time.Duration, logger *zap.Logger) (*Refresher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Refresher{target: target, timeout: timeout, logger: logger}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	if _, err := c.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}
	r.cron = c
	return r, nil
}

// Start runs the scheduler in its own goroutine.
func (r *Refresher) Start() {
	r.cron.Start()
	r.logger.Info("scheduled refresh started")
}

// Stop halts scheduling and waits for a running refresh to finish or ctx to end.
func (r *Refresher) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one refresh. It returns the outcome label recorded in metrics.
func (r *Refresher) RunOnce(ctx context.Context) string {
	if !r.target.HasReading() {
		observability.RefreshRunsTotal.WithLabelValues("skipped").Inc()
		return "skipped"
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	reading, err := r.target.Refresh(ctx)
	if err != nil {
		observability.RefreshRunsTotal.WithLabelValues("error").Inc()
		r.logger.Warn("scheduled refresh failed", zap.Error(err))
		return "error"
	}
	observability.RefreshRunsTotal.WithLabelValues("success").Inc()
	r.logger.Debug("scheduled refresh complete", zap.String("city", reading.City), zap.Duration("duration", time.Since(start)))
	return "success"
}

func (r *Refresher) run() {
	r.RunOnce(context.Background())
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
