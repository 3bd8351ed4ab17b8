package schedule

import (
	"context"
	"time"

	"coursepipe/internal/observability"
	apperrors "coursepipe/pkg/errors"

	"go.uber.org/zap"
)

// History reports the most recent logical date that already has a run.
type History interface {
	LatestLogicalDate(ctx context.Context, loc *time.Location) (*time.Time, error)
}

// TriggerFunc starts the pipeline for one logical date and blocks until it finishes.
type TriggerFunc func(ctx context.Context, logicalDate time.Time) error

// Scheduler polls the schedule and triggers every due logical date in order.
type Scheduler struct {
	Schedule     Schedule
	PollInterval time.Duration
	History      History
	Trigger      TriggerFunc
	Logger       *zap.Logger

	now           func() time.Time
	lastTriggered *time.Time
}

// Run polls until ctx is cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := observability.OrNop(s.Logger)
	interval := s.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	logger.Info("Scheduler started",
		zap.Time("start_date", s.Schedule.Start),
		zap.Bool("catchup", s.Schedule.CatchUp),
		zap.Duration("poll_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick triggers whatever is due now and returns the dates it triggered.
// A run that fails still counts as scheduled. A date whose run could not start
// because the warehouse or run lock was held stays due for the next tick.
func (s *Scheduler) Tick(ctx context.Context) []time.Time {
	logger := observability.OrNop(s.Logger)

	last, err := s.last(ctx)
	if err != nil {
		logger.Error("Failed to read run history", zap.Error(err))
		return nil
	}

	var triggered []time.Time
	for _, date := range s.Schedule.DueDates(s.clock(), last) {
		if ctx.Err() != nil {
			break
		}

		logger.Info("Triggering run", zap.String("logical_date", date.Format("2006-01-02")))
		if err := s.Trigger(ctx, date); err != nil {
			if notStarted(err) {
				logger.Warn("Scheduled run did not start, retrying next tick",
					zap.String("logical_date", date.Format("2006-01-02")),
					zap.Error(err))
				break
			}
			logger.Error("Scheduled run failed",
				zap.String("logical_date", date.Format("2006-01-02")),
				zap.Error(err))
		}

		d := date
		s.lastTriggered = &d
		triggered = append(triggered, date)
	}
	return triggered
}

// notStarted reports whether err was returned before a run was created.
func notStarted(err error) bool {
	return apperrors.IsCode(err, apperrors.ErrCodeLockTimeout) ||
		apperrors.IsCode(err, apperrors.ErrCodeRunInProgress)
}

func (s *Scheduler) last(ctx context.Context) (*time.Time, error) {
	var recorded *time.Time
	if s.History != nil {
		var err error
		recorded, err = s.History.LatestLogicalDate(ctx, s.Schedule.loc())
		if err != nil {
			return nil, err
		}
	}

	switch {
	case recorded == nil:
		return s.lastTriggered, nil
	case s.lastTriggered != nil && s.lastTriggered.After(*recorded):
		return s.lastTriggered, nil
	default:
		return recorded, nil
	}
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
