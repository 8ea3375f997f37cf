package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/metalagman/taskflow/internal/task"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the scan period.
const DefaultInterval = time.Minute

// TaskLookup resolves the task a reminder points at.
type TaskLookup interface {
	Get(ctx context.Context, id string) (task.Task, error)
}

// SchedulerConfig tunes the scan loop.
type SchedulerConfig struct {
	Interval    time.Duration
	Concurrency int
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Snoozed    int `json:"snoozed"`
	Failed     int `json:"failed"`
}

// Scheduler periodically delivers due reminders. Each reminder is handled
// under its lock, so a concurrent snooze either lands before the eligibility
// check or waits until the sent flag is written.
type Scheduler struct {
	svc         *Service
	tasks       TaskLookup
	sender      Sender
	directory   Directory
	interval    time.Duration
	concurrency int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler over the reminders owned by svc.
func NewScheduler(svc *Service, tasks TaskLookup, sender Sender, directory Directory, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if directory == nil {
		directory = StaticDirectory{}
	}
	return &Scheduler{
		svc:         svc,
		tasks:       tasks,
		sender:      sender,
		directory:   directory,
		interval:    cfg.Interval,
		concurrency: cfg.Concurrency,
	}
}

// Start launches the scan loop. It returns an error when already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("reminder scheduler already running")
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
	log.Info().Dur("interval", s.interval).Msg("reminder scheduler started")
	return nil
}

// Stop ends the scan loop and waits for an in-flight scan to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		log.Info().Msg("reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop reminder scheduler: %w", ctx.Err())
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// In-flight deliveries are not cancelled by Stop.
			res, err := s.RunOnce(context.WithoutCancel(ctx), s.svc.now())
			if err != nil {
				log.Error().Err(err).Msg("reminder scan failed")
				continue
			}
			log.Debug().Int("candidates", res.Candidates).Int("sent", res.Sent).
				Int("snoozed", res.Snoozed).Int("failed", res.Failed).Msg("reminder scan")
		}
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSnoozed
	outcomeFailed
	outcomeGone
)

// RunOnce delivers every reminder due at now that is not snoozed. Delivery
// failures leave the reminder unsent for the next scan; store failures are
// returned after the remaining candidates have been processed.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (ScanResult, error) {
	now = now.UTC()
	candidates, err := s.svc.store.Due(ctx, now)
	if err != nil {
		return ScanResult{}, err
	}
	res := ScanResult{Candidates: len(candidates)}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, r := range candidates {
		id := r.ID
		g.Go(func() error {
			out, err := s.deliver(ctx, id, now)
			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeSent:
				res.Sent++
			case outcomeSnoozed:
				res.Snoozed++
			case outcomeFailed:
				res.Failed++
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Scheduler) deliver(ctx context.Context, id string, now time.Time) (outcome, error) {
	unlock := s.svc.locks.Lock(id)
	defer unlock()

	// Re-read under the lock to observe snoozes and deletions that raced the scan.
	r, err := s.svc.store.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return outcomeGone, nil
		}
		return outcomeFailed, err
	}
	if r.Sent {
		return outcomeGone, nil
	}
	if !r.Eligible(now) {
		return outcomeSnoozed, nil
	}

	logger := log.With().Str("reminder_id", r.ID).Str("task_id", r.TaskID).Str("user_id", r.UserID).Logger()
	to, err := s.directory.Contact(ctx, r.UserID)
	if err != nil {
		logger.Warn().Err(err).Msg("reminder contact unresolved")
		return outcomeFailed, nil
	}
	subject, body := s.compose(ctx, r)
	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		if !errors.Is(err, apperr.ErrDeliveryFailed) {
			err = fmt.Errorf("%w: %w", apperr.ErrDeliveryFailed, err)
		}
		logger.Warn().Err(err).Msg("reminder delivery failed")
		return outcomeFailed, nil
	}
	if err := s.svc.store.MarkSent(ctx, r.ID); err != nil {
		logger.Error().Err(err).Msg("reminder delivered but not marked sent")
		return outcomeFailed, err
	}
	r.Sent = true
	logger.Info().Msg("reminder sent")
	s.svc.bus.Publish(events.UserScope(r.UserID), events.ReminderSent, r)
	return outcomeSent, nil
}

func (s *Scheduler) compose(ctx context.Context, r Reminder) (string, string) {
	title := r.TaskID
	var due string
	if s.tasks != nil {
		t, err := s.tasks.Get(ctx, r.TaskID)
		switch {
		case err == nil:
			title = t.Title
			if t.DueAt != nil {
				due = t.DueAt.Format(time.RFC1123)
			}
		case !isNotFound(err):
			log.Warn().Err(err).Str("task_id", r.TaskID).Msg("reminder task lookup failed")
		}
	}
	subject := "Reminder: " + title
	body := fmt.Sprintf("This is a reminder for task %q.", title)
	if due != "" {
		body += "\nDue: " + due
	}
	return subject, body
}
