package sync

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-datalayer/internal/store"
)

func TestManualConnectivityNotifiesOnChange(t *testing.T) {
	c := NewManualConnectivity(false)

	var events []bool
	unsubscribe := c.Subscribe(func(online bool) { events = append(events, online) })

	c.SetOnline(true)
	c.SetOnline(true)
	c.SetOnline(false)
	unsubscribe()
	c.SetOnline(true)

	assert.Equal(t, []bool{true, false}, events)
	assert.True(t, c.IsOnline())
}

type fakeChecker struct {
	healthy atomic.Bool
}

func (f *fakeChecker) HealthCheck(context.Context) bool {
	return f.healthy.Load()
}

func TestProbeConnectivity(t *testing.T) {
	checker := &fakeChecker{}
	p := NewProbeConnectivity(checker, DefaultInterval, true)

	assert.False(t, p.Check(context.Background()))
	assert.False(t, p.IsOnline())

	checker.healthy.Store(true)
	assert.True(t, p.Check(context.Background()))
	assert.True(t, p.IsOnline())

	require.NoError(t, p.Start())
	p.Stop()
	p.Stop()
}

func TestProbeDrivesManager(t *testing.T) {
	checker := &fakeChecker{}
	p := NewProbeConnectivity(checker, DefaultInterval, false)
	m := newManager(t, &fakeExecutor{}, store.NewMemoryStore(), p)

	assert.False(t, m.IsOnline())
	checker.healthy.Store(true)
	p.Check(context.Background())
	assert.True(t, m.IsOnline())
}
