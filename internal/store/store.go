package store

import (
	"context"
	"time"

	"github.com/hyperengineering/caseload/internal/types"
)

// Store defines the interface contract for all client record storage operations.
type Store interface {
	CreateClient(ctx context.Context, fields types.ClientFields) (*types.Client, error)
	UpdateClient(ctx context.Context, id string, fields types.ClientFields) error
	GetClient(ctx context.Context, id string) (*types.ClientDetail, error)
	DeleteClient(ctx context.Context, id string) error
	UpdateClientStatus(ctx context.Context, id string, status types.ClientStatus) error
	ListClients(ctx context.Context, filter types.ListFilter) (*types.ClientList, error)

	CreateChild(ctx context.Context, clientID string, child types.Child) (string, error)
	UpdateChild(ctx context.Context, child types.Child) error
	DeleteChild(ctx context.Context, kind types.ChildKind, id string) error

	SaveComposite(ctx context.Context, clientID string, form types.Composite) (string, error)

	AuthorizationStore
	TaskStore

	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
	GenerateSnapshot(ctx context.Context, path string) error
	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}

// AuthorizationStore manages service authorizations. Deletes are soft.
type AuthorizationStore interface {
	CreateAuthorization(ctx context.Context, clientID string, auth types.Authorization) (string, error)
	UpdateAuthorization(ctx context.Context, auth types.Authorization) error
	DeleteAuthorization(ctx context.Context, id string) error
}

// TaskStore manages tasks, which may or may not belong to a client. Deletes are soft.
type TaskStore interface {
	CreateTask(ctx context.Context, task types.Task) (string, error)
	UpdateTask(ctx context.Context, task types.Task) error
	CompleteTask(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]types.Task, error)
}
