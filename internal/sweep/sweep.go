// Package sweep dispatches scheduled notifications once their time arrives.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"auction-tracker/internal/config"
	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/logging"
	"auction-tracker/internal/models"
	"auction-tracker/internal/notify"
	"auction-tracker/internal/store"
	"auction-tracker/pkg/utils"
)

// Config holds sweep policy.
type Config struct {
	BatchSize        int
	Concurrency      int
	DispatchAttempts int
	RetryDelay       time.Duration
	ResultsBaseURL   string
}

// ConfigFrom builds a sweep Config from the application configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BatchSize:        cfg.Sweep.BatchSize,
		Concurrency:      cfg.Sweep.Concurrency,
		DispatchAttempts: cfg.Sweep.DispatchAttempts,
		RetryDelay:       time.Second,
		ResultsBaseURL:   cfg.Notifications.ResultsBaseURL,
	}
}

// Result summarises one sweep.
type Result struct {
	Due       int `json:"due"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
)

// Sweeper finds due notifications and delivers them.
type Sweeper struct {
	cfg           Config
	notifications store.NotificationStore
	users         store.UserStore
	dispatcher    notify.Dispatcher
	logger        zerolog.Logger
	now           func() time.Time
}

// New creates a Sweeper.
func New(cfg Config, notifications store.NotificationStore, users store.UserStore, dispatcher notify.Dispatcher, logger zerolog.Logger) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.DispatchAttempts <= 0 {
		cfg.DispatchAttempts = 1
	}
	return &Sweeper{
		cfg:           cfg,
		notifications: notifications,
		users:         users,
		dispatcher:    dispatcher,
		logger:        logging.WithOperation(logger, "sweep"),
		now:           time.Now,
	}
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.RunOnce(ctx)
	return err
}

// RunOnce performs one sweep and reports what happened. A failed batch
// query aborts the sweep before any record is touched. Failures of
// individual records are recorded on the records and do not abort siblings.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	now := s.now()

	due, err := s.notifications.ListDueNotifications(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Querying due notifications failed")
		return Result{}, apperrors.Wrap(err, "querying due notifications")
	}

	res := Result{Due: len(due)}
	if len(due) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Concurrency)

	for i := range due {
		n := due[i]
		eg.Go(func() error {
			o := s.process(egCtx, n)

			mu.Lock()
			switch o {
			case outcomeCompleted:
				res.Completed++
			case outcomeFailed:
				res.Failed++
			case outcomeSkipped:
				res.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	logging.LogSweep(s.logger, res.Due, res.Completed, res.Failed, res.Skipped, time.Since(start))
	return res, nil
}

// process claims, resolves, dispatches and finalises a single record.
func (s *Sweeper) process(ctx context.Context, n models.ScheduledNotification) outcome {
	log := logging.WithItem(s.logger, n.UserID, n.ItemID)

	err := s.notifications.TransitionNotification(ctx, n.UserID, n.ItemID, models.StatusScheduled, models.StatusProcessing, "")
	if err != nil {
		if apperrors.Is(err, apperrors.ErrClaimLost) || apperrors.Is(err, apperrors.ErrNotificationAbsent) {
			log.Debug().Err(err).Msg("Notification already claimed")
		} else {
			log.Error().Err(err).Msg("Claiming notification failed")
		}
		return outcomeSkipped
	}

	// Once claimed, the record must reach a terminal status even if the
	// sweep is being cancelled.
	finishCtx := context.WithoutCancel(ctx)

	email, err := s.resolveEmail(ctx, n.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("Recipient lookup failed")
		s.finish(finishCtx, log, n, models.StatusError, failureReason(err))
		return outcomeFailed
	}

	msg := notify.AuctionEnded(email, n.CardName, n.ItemID, s.cfg.ResultsBaseURL)

	started := time.Now()
	err = utils.Retry(ctx, utils.RetryConfig{
		MaxAttempts:   s.cfg.DispatchAttempts,
		InitialDelay:  s.cfg.RetryDelay,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		Permanent:     []error{apperrors.ErrNoChannels},
	}, func(ctx context.Context) error {
		return s.dispatcher.Dispatch(ctx, msg)
	})
	logging.LogDispatch(log, n.UserID, n.ItemID, email, time.Since(started), err)

	if err != nil {
		s.finish(finishCtx, log, n, models.StatusError, err.Error())
		return outcomeFailed
	}

	if !s.finish(finishCtx, log, n, models.StatusCompleted, "") {
		return outcomeFailed
	}
	return outcomeCompleted
}

func (s *Sweeper) finish(ctx context.Context, log zerolog.Logger, n models.ScheduledNotification, to models.NotificationStatus, reason string) bool {
	err := s.notifications.TransitionNotification(ctx, n.UserID, n.ItemID, models.StatusProcessing, to, reason)
	if err != nil {
		log.Error().Err(err).Str("notification", n.Key()).Str("status", string(to)).Msg("Recording notification outcome failed")
		return false
	}
	return true
}

// resolveEmail returns the address notifications for userID go to.
func (s *Sweeper) resolveEmail(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return "", apperrors.NewLookupError(userID, fmt.Sprintf("User %s not found", userID), err)
		}
		return "", apperrors.NewLookupError(userID, "user lookup failed", err)
	}
	if user.Email == "" {
		return "", apperrors.NewLookupError(userID, fmt.Sprintf("No email found for user %s", userID), apperrors.ErrNoEmail)
	}
	return user.Email, nil
}

// failureReason is the description stored on a record that failed lookup.
func failureReason(err error) string {
	var lookupErr *apperrors.LookupError
	if apperrors.As(err, &lookupErr) {
		return lookupErr.Reason
	}
	return err.Error()
}
