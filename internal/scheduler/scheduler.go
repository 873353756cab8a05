// Package scheduler drives the periodic billing work: invoice closing,
// overdue sweeps, monthly bulk generation and the usage buffer drain. One
// scheduler runs inside the billing process; jobs are due-time gated so a
// restart never double-fires a daily job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metergate/metergate/internal/clock"
	"github.com/metergate/metergate/internal/config"
	invoicedomain "github.com/metergate/metergate/internal/invoice/domain"
	obsmetrics "github.com/metergate/metergate/internal/observability/metrics"
	"github.com/metergate/metergate/internal/scheduler/guard"
	"github.com/metergate/metergate/internal/usage/buffer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobInvoiceClose   = "invoice.close"
	JobInvoiceOverdue = "invoice.overdue"
	JobInvoiceMonthly = "invoice.monthly"
	JobUsageDrain     = "usage.drain"
)

var knownJobs = []string{JobInvoiceClose, JobInvoiceOverdue, JobInvoiceMonthly, JobUsageDrain}

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	AppConfig  config.Config
	Runtime    *config.RuntimeConfigHolder
	InvoiceSvc invoicedomain.Service
	Drainer    *buffer.Drainer
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	loc        *time.Location
	runtime    *config.RuntimeConfigHolder
	invoiceSvc invoicedomain.Service
	drainer    *buffer.Drainer
	genID      *snowflake.Node
	clock      clock.Clock

	// lastRuns tracks the most recent attempt per job. RunOnce is only
	// ever called from the run loop goroutine (or directly in tests), so
	// the map needs no lock.
	lastRuns map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Runtime == nil || p.InvoiceSvc == nil || p.Drainer == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		loc:        p.AppConfig.Location(),
		runtime:    p.Runtime,
		invoiceSvc: p.InvoiceSvc,
		drainer:    p.Drainer,
		genID:      p.GenID,
		clock:      p.Clock,
		lastRuns:   make(map[string]time.Time),
	}, nil
}

func validateConfig(cfg Config) error {
	if err := guard.EnsureTick(cfg.TickInterval); err != nil {
		return err
	}
	if err := guard.EnsureJobTimeout(cfg.JobTimeout); err != nil {
		return err
	}
	if err := guard.EnsureDailyHour(cfg.CloseHour); err != nil {
		return err
	}
	if err := guard.EnsureDailyHour(cfg.OverdueHour); err != nil {
		return err
	}
	if err := guard.EnsureLookahead(cfg.LookaheadDays); err != nil {
		return err
	}
	for _, name := range cfg.EnabledJobs {
		if err := guard.EnsureJobKnown(name, knownJobs); err != nil {
			return fmt.Errorf("%w: %s", err, name)
		}
	}
	return nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline expiry is a soft timeout; the next due window retries.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce evaluates every job's due time against the business clock and runs
// the ones that are due. Jobs never seen before are due immediately so a
// missed window is caught up after a restart.
func (s *Scheduler) RunOnce(parent context.Context) error {
	now := s.clock.Now().In(s.loc)
	drainBatch := s.runtime.Get().DrainBatchSize

	jobs := []struct {
		Name string
		Due  bool
		Run  func(context.Context) error
	}{
		{JobUsageDrain, s.dueEvery(JobUsageDrain, s.runtime.Get().DrainInterval(), now), func(ctx context.Context) error {
			return s.runJob(ctx, JobUsageDrain, drainBatch, s.cfg.JobTimeout, s.DrainUsageJob)
		}},
		{JobInvoiceClose, s.dueDaily(JobInvoiceClose, s.cfg.CloseHour, now), func(ctx context.Context) error {
			return s.runJob(ctx, JobInvoiceClose, 0, s.cfg.JobTimeout, s.CloseInvoicesJob)
		}},
		{JobInvoiceOverdue, s.dueDaily(JobInvoiceOverdue, s.cfg.OverdueHour, now), func(ctx context.Context) error {
			return s.runJob(ctx, JobInvoiceOverdue, 0, s.cfg.JobTimeout, s.MarkOverdueJob)
		}},
		{JobInvoiceMonthly, s.dueMonthly(JobInvoiceMonthly, now), func(ctx context.Context) error {
			return s.runJob(ctx, JobInvoiceMonthly, 0, s.cfg.JobTimeout, s.MonthlyInvoicesJob)
		}},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) || !job.Due {
			continue
		}
		s.lastRuns[job.Name] = now
		err = errors.Join(err, job.Run(parent))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.TickInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.TickInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means every job runs (single-process mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// dueDaily reports whether the job's most recent run predates the latest
// occurrence of hour o'clock in the business time zone.
func (s *Scheduler) dueDaily(name string, hour int, now time.Time) bool {
	occurrence := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, s.loc)
	if now.Before(occurrence) {
		occurrence = occurrence.AddDate(0, 0, -1)
	}
	last, ok := s.lastRuns[name]
	return !ok || last.Before(occurrence)
}

// dueMonthly reports whether the job has run since midnight on the first of
// the current month.
func (s *Scheduler) dueMonthly(name string, now time.Time) bool {
	occurrence := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	last, ok := s.lastRuns[name]
	return !ok || last.Before(occurrence)
}

func (s *Scheduler) dueEvery(name string, interval time.Duration, now time.Time) bool {
	last, ok := s.lastRuns[name]
	return !ok || !now.Before(last.Add(interval))
}

// DrainUsageJob moves one batch of buffered usage records into the database.
func (s *Scheduler) DrainUsageJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobUsageDrain, s.runtime.Get().DrainBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	drained, err := s.drainer.DrainOnce(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "usage drain failed", JobUsageDrain, 0, err)
		return err
	}
	run.AddProcessed(drained)
	obsmetrics.Scheduler().AddBatchProcessed(JobUsageDrain, "usage_records", drained)
	return nil
}

// CloseInvoicesJob invoices every customer whose billing period has ended.
func (s *Scheduler) CloseInvoicesJob(ctx context.Context) error {
	return s.generateInvoicesJob(ctx, JobInvoiceClose, 0)
}

// MonthlyInvoicesJob is the first-of-month bulk run. It looks ahead a few
// days so invoices land even when a period closes mid-tick-gap.
func (s *Scheduler) MonthlyInvoicesJob(ctx context.Context) error {
	return s.generateInvoicesJob(ctx, JobInvoiceMonthly, s.cfg.LookaheadDays)
}

func (s *Scheduler) generateInvoicesJob(ctx context.Context, job string, maxDaysRemaining int) error {
	ctx, run, owner := s.ensureJobRun(ctx, job, 0)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.invoiceSvc.GenerateMonthlyInvoices(ctx, maxDaysRemaining)
	if err != nil {
		s.logSchedulerError(ctx, run, "invoice generation run failed", job, 0, err)
		return err
	}

	run.AddProcessed(result.Generated)
	obsmetrics.Scheduler().AddBatchProcessed(job, "invoices", result.Generated)
	for _, failure := range result.Failed {
		s.logSchedulerError(ctx, run, "invoice generation failed", job, failure.CustomerID, errors.New(failure.Error))
	}
	s.logInvoiceRun(ctx, job, result.Generated, result.Skipped, len(result.Failed))
	return nil
}

// MarkOverdueJob flips pending invoices past their due date to OVERDUE.
func (s *Scheduler) MarkOverdueJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobInvoiceOverdue, 0)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	marked, err := s.invoiceSvc.MarkOverdueInvoices(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "overdue sweep failed", JobInvoiceOverdue, 0, err)
		return err
	}
	run.AddProcessed(int(marked))
	obsmetrics.Scheduler().AddBatchProcessed(JobInvoiceOverdue, "invoices", int(marked))
	if marked > 0 {
		s.logger(ctx).Info("invoices marked overdue", zap.Int64("count", marked))
	}
	return nil
}
