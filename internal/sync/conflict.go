package sync

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"finance-datalayer/internal/resource"
	"finance-datalayer/internal/store"
)

const StrategyLastWriteWins = "last_write_wins"

// ResolutionStrategy picks the surviving copy of a diverged resource.
type ResolutionStrategy interface {
	Name() string
	Resolve(local, remote resource.Resource) resource.Resource
}

// LastWriteWinsStrategy keeps whichever copy has the later updatedAt. The
// remote copy wins ties.
type LastWriteWinsStrategy struct{}

func (LastWriteWinsStrategy) Name() string { return StrategyLastWriteWins }

func (LastWriteWinsStrategy) Resolve(local, remote resource.Resource) resource.Resource {
	if local.UpdatedAt().After(remote.UpdatedAt()) {
		return local
	}
	return remote
}

// ConflictManager resolves diverged copies and keeps a log of them in the store.
type ConflictManager struct {
	store    store.Store
	strategy ResolutionStrategy
	now      func() time.Time
}

func NewConflictManager(st store.Store) *ConflictManager {
	return &ConflictManager{
		store:    st,
		strategy: LastWriteWinsStrategy{},
		now:      time.Now,
	}
}

// ResolveConflict returns the winning copy. Copies that actually differ are
// recorded as a resolved conflict.
func (cm *ConflictManager) ResolveConflict(ctx context.Context, kind resource.Kind, local, remote resource.Resource) (resource.Resource, error) {
	winner := cm.strategy.Resolve(local, remote)
	if calculateHash(local) == calculateHash(remote) {
		return winner, nil
	}

	localBytes, err := json.Marshal(local)
	if err != nil {
		return nil, fmt.Errorf("failed to encode local copy: %w", err)
	}
	remoteBytes, err := json.Marshal(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to encode remote copy: %w", err)
	}
	winnerBytes, err := json.Marshal(winner)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resolved copy: %w", err)
	}

	id := local.ID()
	if id == "" {
		id = remote.ID()
	}
	conflict := &store.Conflict{
		ID:           uuid.NewString(),
		Resource:     string(kind),
		ResourceID:   id,
		LocalData:    localBytes,
		RemoteData:   remoteBytes,
		ConflictType: "data_mismatch",
		DetectedAt:   cm.now().UTC(),
	}
	if err := cm.store.CreateConflict(ctx, conflict); err != nil {
		return winner, err
	}
	if err := cm.store.ResolveConflict(ctx, conflict.ID, cm.strategy.Name(), winnerBytes); err != nil {
		return winner, err
	}
	return winner, nil
}

// calculateHash is stable across key order.
func calculateHash(data resource.Resource) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v, _ := json.Marshal(data[k])
		fmt.Fprintf(h, "%q=%s;", k, v)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
