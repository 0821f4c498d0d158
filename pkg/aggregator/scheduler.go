package aggregator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires the aggregation job at every quarter-hour boundary.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewScheduler(job *Job, schedule string, log *zap.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(schedule, func() {
		if err := job.Run(context.Background()); err != nil {
			log.Error("aggregation run failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, log: log}, nil
}

func (s *Scheduler) Start() {
	s.log.Info("aggregation scheduler started")
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("aggregation scheduler stopped")
}
