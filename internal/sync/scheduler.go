package sync

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"finance-datalayer/internal/logger"
)

const DefaultInterval = 30 * time.Second

// Scheduler retries the queue periodically so replay happens even when no
// connectivity transition is observed.
type Scheduler struct {
	interval time.Duration
	manager  *Manager

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(interval time.Duration, manager *Manager) *Scheduler {
	return &Scheduler{
		interval: interval,
		manager:  manager,
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	logger.Log.Info("Starting sync scheduler", zap.Duration("interval", s.interval))

	c := cron.New()
	id, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.triggerSync)
	if err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	s.entryID = id
	s.cron = c
	c.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		logger.Log.Info("Stopped sync scheduler")
	}
}

// Next reports when the next scheduled pass runs, zero when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) triggerSync() {
	status := s.manager.Status()
	if !status.IsOnline || status.PendingOperations == 0 {
		return
	}
	if status.SyncInProgress {
		logger.Log.Debug("Sync already running, skipping scheduled run")
		return
	}

	logger.Log.Info("Triggering scheduled sync", zap.Int("pending", status.PendingOperations))
	if err := s.manager.ProcessQueue(WithTrigger(s.manager.ctx, "scheduled")); err != nil {
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
	}
}
