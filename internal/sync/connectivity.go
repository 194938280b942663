package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"finance-datalayer/internal/logger"
)

// Connectivity reports whether the backend is reachable and notifies
// subscribers on every transition.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// ManualConnectivity is flipped explicitly with SetOnline.
type ManualConnectivity struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{online: online, subs: make(map[int]func(bool))}
}

func (c *ManualConnectivity) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *ManualConnectivity) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// SetOnline records the state and notifies subscribers when it changed.
func (c *ManualConnectivity) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	logger.Log.Info("Connectivity changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

// HealthChecker is satisfied by apiclient.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// ProbeConnectivity derives the online state from periodic health checks.
type ProbeConnectivity struct {
	*ManualConnectivity
	checker  HealthChecker
	interval time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

func NewProbeConnectivity(checker HealthChecker, interval time.Duration, initial bool) *ProbeConnectivity {
	return &ProbeConnectivity{
		ManualConnectivity: NewManualConnectivity(initial),
		checker:            checker,
		interval:           interval,
	}
}

// Check probes once and updates the state.
func (p *ProbeConnectivity) Check(ctx context.Context) bool {
	online := p.checker.HealthCheck(ctx)
	p.SetOnline(online)
	return online
}

func (p *ProbeConnectivity) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		p.Check(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule connectivity probe: %w", err)
	}
	c.Start()
	p.cron = c
	return nil
}

func (p *ProbeConnectivity) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
