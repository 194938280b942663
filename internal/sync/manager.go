package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finance-datalayer/internal/apiclient"
	"finance-datalayer/internal/logger"
	"finance-datalayer/internal/resource"
	"finance-datalayer/internal/store"
)

// QueueKey is the document key holding the persisted queue.
const QueueKey = "pending_operations"

// Manager owns the pending-operation queue. The queue is persisted after
// every change and restored when the manager is built.
type Manager struct {
	executor Executor
	store    store.Store
	conn     Connectivity
	now      func() time.Time

	mu             sync.Mutex
	queue          []*PendingOperation
	online         bool
	lastSync       *time.Time
	syncInProgress bool
	inFlight       string
	errors         []string
	onComplete     []func(Status)
	onSynced       []func(PendingOperation, *apiclient.Response)
	closed         bool

	unsubscribe func()
	scheduler   *Scheduler
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithInterval sets how often the scheduler retries the queue.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.scheduler.interval = d
		}
	}
}

func NewManager(ctx context.Context, executor Executor, st store.Store, conn Connectivity, opts ...Option) (*Manager, error) {
	bg, cancel := context.WithCancel(context.Background())
	m := &Manager{
		executor: executor,
		store:    st,
		conn:     conn,
		now:      time.Now,
		online:   conn.IsOnline(),
		ctx:      bg,
		cancel:   cancel,
	}
	m.scheduler = NewScheduler(DefaultInterval, m)
	for _, opt := range opts {
		opt(m)
	}

	if err := m.restore(ctx); err != nil {
		cancel()
		return nil, err
	}
	m.unsubscribe = conn.Subscribe(m.handleConnectivity)

	logger.Log.Info("Sync manager ready",
		zap.Bool("online", m.online),
		zap.Int("pending", len(m.queue)),
	)
	return m, nil
}

// Start begins periodic replay.
func (m *Manager) Start() error {
	return m.scheduler.Start()
}

// Stop halts the scheduler, detaches from connectivity events and waits for
// in-flight replays.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.scheduler.Stop()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.cancel()
	m.wg.Wait()
	logger.Log.Info("Stopped sync manager")
}

func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	s := Status{
		IsOnline:          m.online,
		PendingOperations: len(m.queue),
		SyncInProgress:    m.syncInProgress,
		Errors:            append([]string{}, m.errors...),
	}
	if m.lastSync != nil {
		t := *m.lastSync
		s.LastSync = &t
	}
	return s
}

// PendingOperations returns a copy of the queue in FIFO order.
func (m *Manager) PendingOperations() []PendingOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PendingOperation, len(m.queue))
	for i, op := range m.queue {
		out[i] = *op
	}
	return out
}

// OnSyncComplete registers a callback invoked after every replay pass.
func (m *Manager) OnSyncComplete(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = append(m.onComplete, fn)
}

// OnOperationSynced registers a callback invoked for every operation the
// backend accepted during replay.
func (m *Manager) OnOperationSynced(fn func(PendingOperation, *apiclient.Response)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSynced = append(m.onSynced, fn)
}

// QueueOperation appends a mutation to the queue and persists it. When
// online a replay pass is started in the background.
func (m *Manager) QueueOperation(ctx context.Context, kind resource.Kind, op OpType, data map[string]any, maxRetries int) (string, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	pending := &PendingOperation{
		ID:         uuid.NewString(),
		Resource:   kind,
		Operation:  op,
		Data:       data,
		Timestamp:  m.now().UTC(),
		MaxRetries: maxRetries,
	}

	m.mu.Lock()
	m.queue = append(m.queue, pending)
	if err := m.persistLocked(ctx); err != nil {
		m.queue = m.queue[:len(m.queue)-1]
		m.mu.Unlock()
		return "", err
	}
	online := m.online
	m.mu.Unlock()

	logger.Log.Info("Queued operation",
		zap.String("id", pending.ID),
		zap.String("resource", string(kind)),
		zap.String("operation", string(op)),
	)

	if online {
		m.processAsync("queue")
	}
	return pending.ID, nil
}

// RemoveOperation drops a queued operation before it is replayed.
func (m *Manager) RemoveOperation(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, op := range m.queue {
		if op.ID != id {
			continue
		}
		m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
		return true, m.persistLocked(ctx)
	}
	return false, nil
}

// ForceSyncAll runs one replay pass and waits for it.
func (m *Manager) ForceSyncAll(ctx context.Context) error {
	if !m.IsOnline() {
		return ErrOffline
	}
	return m.ProcessQueue(ctx)
}

// ProcessQueue replays a snapshot of the queue in FIFO order. It is a no-op
// while offline or while another pass is running.
func (m *Manager) ProcessQueue(ctx context.Context) error {
	m.mu.Lock()
	if m.syncInProgress || !m.online {
		m.mu.Unlock()
		return nil
	}
	m.syncInProgress = true
	m.errors = nil
	snapshot := append([]*PendingOperation(nil), m.queue...)
	m.mu.Unlock()

	history := &store.SyncHistory{
		ID:        uuid.NewString(),
		StartedAt: m.now().UTC(),
		Trigger:   triggerFrom(ctx),
		Status:    store.HistoryRunning,
	}
	if err := m.store.CreateSyncHistory(ctx, history); err != nil {
		logger.Log.Warn("Failed to record sync history", zap.Error(err))
	}

	done := make(map[string]bool, len(snapshot))
	var synced []PendingOperation
	var responses []*apiclient.Response
	var persistErr error

	for _, op := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if !m.begin(op.ID) {
			continue
		}

		resp, err := m.execute(ctx, op)

		m.mu.Lock()
		m.inFlight = ""
		switch {
		case err == nil:
			done[op.ID] = true
			history.Processed++
			synced = append(synced, *op)
			responses = append(responses, resp)
		case errors.Is(err, ErrInvalidOperation) || apiclient.IsClientError(err):
			done[op.ID] = true
			history.Failed++
			m.errors = append(m.errors, fmt.Sprintf("Operation %s on %s rejected: %v", op.Operation, op.Resource, err))
		default:
			op.RetryCount++
			if op.RetryCount >= op.MaxRetries {
				done[op.ID] = true
				history.Failed++
				m.errors = append(m.errors, fmt.Sprintf("Operation failed after %d retries: %s %s: %v", op.RetryCount, op.Operation, op.Resource, err))
			} else if err := m.persistLocked(ctx); err != nil {
				persistErr = err
			}
		}
		m.mu.Unlock()

		if err != nil {
			logger.Log.Warn("Replay failed",
				zap.String("id", op.ID),
				zap.String("resource", string(op.Resource)),
				zap.String("operation", string(op.Operation)),
				zap.Int("retry_count", op.RetryCount),
				zap.Error(err),
			)
		}
	}

	m.mu.Lock()
	kept := m.queue[:0:0]
	for _, op := range m.queue {
		if !done[op.ID] {
			kept = append(kept, op)
		}
	}
	m.queue = kept
	if err := m.persistLocked(ctx); err != nil {
		persistErr = err
	}
	now := m.now().UTC()
	m.lastSync = &now
	m.syncInProgress = false
	status := m.statusLocked()
	completeFns := append([]func(Status){}, m.onComplete...)
	syncedFns := append([]func(PendingOperation, *apiclient.Response){}, m.onSynced...)
	m.mu.Unlock()

	history.CompletedAt = sql.NullTime{Time: now, Valid: true}
	history.Status = store.HistoryCompleted
	if len(status.Errors) > 0 {
		history.ErrorMessage = sql.NullString{String: status.Errors[len(status.Errors)-1], Valid: true}
	}
	if persistErr != nil {
		history.Status = store.HistoryFailed
		history.ErrorMessage = sql.NullString{String: persistErr.Error(), Valid: true}
	}
	if err := m.store.UpdateSyncHistory(context.WithoutCancel(ctx), history); err != nil {
		logger.Log.Warn("Failed to record sync history", zap.Error(err))
	}

	for i, op := range synced {
		for _, fn := range syncedFns {
			safeCall(func() { fn(op, responses[i]) })
		}
	}
	for _, fn := range completeFns {
		safeCall(func() { fn(status) })
	}

	logger.Log.Info("Sync pass complete",
		zap.Int64("processed", history.Processed),
		zap.Int("failed", history.Failed),
		zap.Int("pending", status.PendingOperations),
	)
	return persistErr
}

func (m *Manager) execute(ctx context.Context, op *PendingOperation) (*apiclient.Response, error) {
	spec, err := resource.Lookup(op.Resource)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	switch op.Operation {
	case OpCreate:
		return m.executor.Post(ctx, spec.CollectionPath(), op.Data)
	case OpUpdate, OpDelete:
		id := op.ResourceID()
		if id == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrInvalidOperation, op.Operation)
		}
		if op.Operation == OpUpdate {
			return m.executor.Put(ctx, spec.ItemPath(id), op.Data)
		}
		return m.executor.Delete(ctx, spec.ItemPath(id))
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidOperation, op.Operation)
	}
}

// begin marks id as being replayed. It reports false when the operation was
// removed from the queue after the pass took its snapshot.
func (m *Manager) begin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(id) < 0 {
		return false
	}
	m.inFlight = id
	return true
}

func (m *Manager) indexLocked(id string) int {
	for i, op := range m.queue {
		if op.ID == id {
			return i
		}
	}
	return -1
}

// AmendOperation merges patch into the data of a queued operation. It
// reports false when the operation is gone or is being replayed right now,
// in which case the caller has to queue its own operation.
func (m *Manager) AmendOperation(ctx context.Context, id string, patch map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 || m.inFlight == id {
		return false, nil
	}
	op := m.queue[i]
	prev := op.Data
	data := make(map[string]any, len(prev)+len(patch))
	for k, v := range prev {
		data[k] = v
	}
	for k, v := range patch {
		data[k] = v
	}
	if rid, ok := prev["id"]; ok {
		data["id"] = rid
	}

	op.Data = data
	if err := m.persistLocked(ctx); err != nil {
		op.Data = prev
		return false, err
	}
	return true, nil
}

// RemapResourceID points every queued operation on kind/oldID at newID. It
// is used once the backend has assigned an id to a locally created resource.
func (m *Manager) RemapResourceID(ctx context.Context, kind resource.Kind, oldID, newID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, op := range m.queue {
		if op.Resource != kind || op.ResourceID() != oldID || op.ID == m.inFlight {
			continue
		}
		data := make(map[string]any, len(op.Data))
		for k, v := range op.Data {
			data[k] = v
		}
		data["id"] = newID
		op.Data = data
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, m.persistLocked(ctx)
}

func (m *Manager) handleConnectivity(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if online && !was {
		logger.Log.Info("Back online, replaying queue")
		m.processAsync("online")
	}
}

func (m *Manager) processAsync(trigger string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if err := m.ProcessQueue(WithTrigger(m.ctx, trigger)); err != nil {
			logger.Log.Error("Background sync failed", zap.Error(err))
		}
	}()
}

func (m *Manager) restore(ctx context.Context) error {
	b, err := m.store.Get(ctx, QueueKey)
	if err != nil {
		return fmt.Errorf("failed to load pending operations: %w", err)
	}
	if b == nil {
		return nil
	}
	var queue []*PendingOperation
	if err := json.Unmarshal(b, &queue); err != nil {
		logger.Log.Warn("Discarding unreadable pending operations", zap.Error(err))
		return nil
	}
	m.queue = queue
	return nil
}

func (m *Manager) persistLocked(ctx context.Context) error {
	queue := m.queue
	if queue == nil {
		queue = []*PendingOperation{}
	}
	b, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("failed to encode pending operations: %w", err)
	}
	if err := m.store.Put(context.WithoutCancel(ctx), QueueKey, b); err != nil {
		return fmt.Errorf("failed to persist pending operations: %w", err)
	}
	return nil
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Warn("Sync callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

type triggerKey struct{}

// WithTrigger labels the sync passes started with ctx in the sync history.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok {
		return t
	}
	return "manual"
}
