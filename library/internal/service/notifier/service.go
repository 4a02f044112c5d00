// Package notifier scans ACTIVE loans and emits due-soon/overdue events.
// Triggers are idempotent per (loan, trigger): re-running a scan never
// re-notifies.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/events"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/repository"
)

type Config struct {
	ScanInterval  time.Duration `envconfig:"NOTIFY_SCAN_INTERVAL" default:"1h"`
	DueSoonWindow time.Duration `envconfig:"NOTIFY_DUE_SOON_WINDOW" default:"48h"`
}

type Service struct {
	log   *zap.Logger
	store repository.Store
	pub   events.Publisher
	cfg   Config
}

func NewService(store repository.Store, pub events.Publisher, cfg Config, log *zap.Logger) *Service {
	return &Service{
		log:   log.Named("notifier"),
		store: store,
		pub:   pub,
		cfg:   cfg,
	}
}

// Run drives periodic scans until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Scan(ctx, time.Now()); err != nil {
				s.log.Error("scan", zap.Error(err))
			}
		}
	}
}

// Scan walks loans due before now+window and records DUE_SOON/OVERDUE
// triggers, publishing an event only for triggers inserted by this run.
func (s *Service) Scan(ctx context.Context, now time.Time) error {
	loans, err := s.store.Loans().ListActiveDueBefore(ctx, now.Add(s.cfg.DueSoonWindow))
	if err != nil {
		return err
	}
	for _, loan := range loans {
		trigger := model.TriggerDueSoon
		if loan.DueDate.Before(now) {
			trigger = model.TriggerOverdue
		}
		inserted, err := s.store.Notifications().InsertTrigger(ctx, loan.ID, trigger)
		if err != nil {
			return err
		}
		if !inserted {
			continue
		}
		s.pub.Notify(events.NotifyEvent{
			LoanID:   loan.ID,
			Username: loan.Username,
			Trigger:  string(trigger),
			DueDate:  loan.DueDate,
		})
		s.log.Debug("notification trigger",
			zap.Int("loan", loan.ID),
			zap.String("trigger", string(trigger)))
	}
	return nil
}
