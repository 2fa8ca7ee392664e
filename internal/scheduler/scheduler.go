package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes all but the newest keep datasets.
type Pruner interface {
	Prune(ctx context.Context, keep int) (int, error)
}

// Scheduler runs the dataset retention job on a cron schedule.
type Scheduler struct {
	Cron   *cron.Cron
	Pruner Pruner
	Keep   int
	Ctx    context.Context

	// OnPruned receives the number of datasets removed by each run. Optional.
	OnPruned func(n int)
}

// NewScheduler creates a Scheduler. Specs use the standard five-field
// format or descriptors such as "@hourly".
func NewScheduler(ctx context.Context, p Pruner, keep int) *Scheduler {
	return &Scheduler{
		Cron:   cron.New(),
		Pruner: p,
		Keep:   keep,
		Ctx:    ctx,
	}
}

// Register adds the retention job.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.retentionTask); err != nil {
		return fmt.Errorf("register retention task %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// RunRetentionNow executes the retention job immediately.
func (s *Scheduler) RunRetentionNow() {
	s.retentionTask()
}

func (s *Scheduler) retentionTask() {
	ctx, cancel := context.WithTimeout(s.Ctx, 30*time.Second)
	defer cancel()

	n, err := s.Pruner.Prune(ctx, s.Keep)
	if err != nil {
		log.Printf("[scheduler] retention: %v", err)
		return
	}
	if s.OnPruned != nil {
		s.OnPruned(n)
	}
}
