package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"notify-engine/internal/common/logger"
)

// Job is one periodic unit of work. Specs accept standard five-field
// cron expressions and @every descriptors.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs the engine's periodic jobs. Each job skips its tick
// while a previous run is still going, so slow cycles never pile up.
type Scheduler struct {
	c      *cron.Cron
	logger logger.Logger
}

func New(timezone string, log logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone %q: %w", timezone, err)
	}

	return &Scheduler{
		c:      cron.New(cron.WithLocation(loc)),
		logger: log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}, nil
}

func (s *Scheduler) Register(job Job) error {
	var running atomic.Bool

	_, err := s.c.AddFunc(job.Spec, func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Warn("job still running, skipping tick", map[string]interface{}{
				"job": job.Name,
			})
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := job.Run(context.Background()); err != nil {
			s.logger.Error("job failed", map[string]interface{}{
				"job":      job.Name,
				"duration": time.Since(start).String(),
				"error":    err.Error(),
			})
			return
		}
		s.logger.Debug("job finished", map[string]interface{}{
			"job":      job.Name,
			"duration": time.Since(start).String(),
		})
	})
	if err != nil {
		return fmt.Errorf("register job %q: %w", job.Name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.logger.Info("scheduler started", map[string]interface{}{
		"jobs": len(s.c.Entries()),
	})
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped", nil)
}
