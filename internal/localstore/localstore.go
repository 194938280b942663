// Package localstore keeps per-kind resource collections in the durable store
// as JSON arrays. It is the last tier the data layer falls back to.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"finance-datalayer/internal/logger"
	"finance-datalayer/internal/resource"
	"finance-datalayer/internal/store"
)

// LegacyPrefix marks collections written by older clients.
const LegacyPrefix = "pfm_"

var ErrNotFound = errors.New("resource not found in local store")

// KV is the slice of store.Store the local store needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

var _ KV = (store.Store)(nil)

type LocalStore struct {
	mu sync.Mutex
	kv KV
}

func New(kv KV) *LocalStore {
	return &LocalStore{kv: kv}
}

// List returns the collection for kind, empty when nothing was stored yet.
func (s *LocalStore) List(ctx context.Context, kind resource.Kind) ([]resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, kind)
}

func (s *LocalStore) Get(ctx context.Context, kind resource.Kind, id string) (resource.Resource, error) {
	list, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
}

// Append adds r to the end of the collection.
func (s *LocalStore) Append(ctx context.Context, kind resource.Kind, r resource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx, kind)
	if err != nil {
		return err
	}
	return s.save(ctx, kind, append(list, r))
}

// Update merges patch into the resource with the given id and returns the result.
func (s *LocalStore) Update(ctx context.Context, kind resource.Kind, id string, patch map[string]any) (resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx, kind)
	if err != nil {
		return nil, err
	}
	for i, r := range list {
		if r.ID() != id {
			continue
		}
		list[i] = r.Merge(patch)
		list[i]["id"] = id
		if err := s.save(ctx, kind, list); err != nil {
			return nil, err
		}
		return list[i], nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
}

// Delete removes the resource with the given id. Deleting an unknown id is not an error.
func (s *LocalStore) Delete(ctx context.Context, kind resource.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx, kind)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, r := range list {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return s.save(ctx, kind, kept)
}

func (s *LocalStore) load(ctx context.Context, kind resource.Kind) ([]resource.Resource, error) {
	spec, err := resource.Lookup(kind)
	if err != nil {
		return nil, err
	}

	for _, key := range []string{spec.StorageKey, LegacyPrefix + string(kind)} {
		b, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if b == nil {
			continue
		}
		var list []resource.Resource
		if err := json.Unmarshal(b, &list); err != nil {
			logger.Log.Warn("Ignoring unreadable local collection", zap.String("key", key), zap.Error(err))
			continue
		}
		return list, nil
	}
	return []resource.Resource{}, nil
}

func (s *LocalStore) save(ctx context.Context, kind resource.Kind, list []resource.Resource) error {
	spec, err := resource.Lookup(kind)
	if err != nil {
		return err
	}
	if list == nil {
		list = []resource.Resource{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	if err := s.kv.Put(ctx, spec.StorageKey, b); err != nil {
		return fmt.Errorf("failed to write %s: %w", spec.StorageKey, err)
	}
	return nil
}
