package service

import (
	"context"
	"sync"
	"time"

	"giveaway-bot/internal/common/logger"
	"giveaway-bot/internal/features/giveaway/repository"
)

// Scheduler drives the time-based half of the lifecycle: one poll loop that
// publishes due giveaways and evaluates end conditions. Count-based finishes
// also happen inline on join; the scheduler picks up whatever that path
// missed, so a lost join-time finish is only delayed, never dropped.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	engine   *Engine
	repo     repository.GiveawayRepository
	interval time.Duration
}

func NewScheduler(engine *Engine, repo repository.GiveawayRepository, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		engine:   engine,
		repo:     repo,
		interval: interval,
	}
}

func (s *Scheduler) Start() {
	logger.Info().Dur("interval", s.interval).Msg("Starting giveaway scheduler")
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.tick(s.ctx, time.Now()); err != nil {
					logger.Error().Err(err).Msg("Scheduler tick failed")
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	logger.Info().Msg("Stopping giveaway scheduler")
	s.cancel()
	s.wg.Wait()
	logger.Info().Msg("Giveaway scheduler stopped")
}

// tick processes one poll. Failures on individual giveaways are logged and
// skipped so one bad giveaway cannot stall the rest; the next tick retries.
func (s *Scheduler) tick(ctx context.Context, now time.Time) error {
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return err
	}

	for _, g := range due.ToPublish {
		if !g.DueForPublish(now) {
			continue
		}
		if err := s.engine.Publish(ctx, g); err != nil {
			logger.Error().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to publish giveaway")
		}
	}

	for _, g := range due.ToEvaluate {
		if err := s.engine.Evaluate(ctx, g, now); err != nil {
			logger.Error().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to evaluate giveaway")
		}
	}
	return nil
}
