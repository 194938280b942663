package sync

import (
	"context"
	"errors"
	"time"

	"finance-datalayer/internal/apiclient"
	"finance-datalayer/internal/resource"
)

type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

const DefaultMaxRetries = 3

var (
	ErrOffline          = errors.New("cannot sync while offline")
	ErrInvalidOperation = errors.New("invalid pending operation")
)

// PendingOperation is a mutation that has not yet been confirmed by the
// primary backend.
type PendingOperation struct {
	ID         string         `json:"id"`
	Resource   resource.Kind  `json:"resource"`
	Operation  OpType         `json:"operation"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
	RetryCount int            `json:"retryCount"`
	MaxRetries int            `json:"maxRetries"`
}

// ResourceID is the id of the resource the operation targets.
func (op PendingOperation) ResourceID() string {
	id, _ := op.Data["id"].(string)
	return id
}

type Status struct {
	IsOnline          bool       `json:"isOnline"`
	LastSync          *time.Time `json:"lastSync,omitempty"`
	PendingOperations int        `json:"pendingOperations"`
	SyncInProgress    bool       `json:"syncInProgress"`
	Errors            []string   `json:"errors"`
}

// Executor replays operations against the primary backend.
type Executor interface {
	Post(ctx context.Context, endpoint string, body any) (*apiclient.Response, error)
	Put(ctx context.Context, endpoint string, body any) (*apiclient.Response, error)
	Delete(ctx context.Context, endpoint string) (*apiclient.Response, error)
}

var _ Executor = (*apiclient.Client)(nil)
