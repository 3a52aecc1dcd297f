package store

import (
	"context"
	"time"

	"github.com/hyperengineering/caseload/internal/types"
)

// mockStore is a compile-time check that the Store interface can be implemented.
type mockStore struct{}

var _ Store = (*mockStore)(nil)
var _ Store = (*SQLiteStore)(nil)

func (m *mockStore) CreateClient(ctx context.Context, fields types.ClientFields) (*types.Client, error) {
	return nil, nil
}
func (m *mockStore) UpdateClient(ctx context.Context, id string, fields types.ClientFields) error {
	return nil
}
func (m *mockStore) GetClient(ctx context.Context, id string) (*types.ClientDetail, error) {
	return nil, nil
}
func (m *mockStore) DeleteClient(ctx context.Context, id string) error {
	return nil
}
func (m *mockStore) UpdateClientStatus(ctx context.Context, id string, status types.ClientStatus) error {
	return nil
}
func (m *mockStore) ListClients(ctx context.Context, filter types.ListFilter) (*types.ClientList, error) {
	return nil, nil
}
func (m *mockStore) CreateChild(ctx context.Context, clientID string, child types.Child) (string, error) {
	return "", nil
}
func (m *mockStore) UpdateChild(ctx context.Context, child types.Child) error {
	return nil
}
func (m *mockStore) DeleteChild(ctx context.Context, kind types.ChildKind, id string) error {
	return nil
}
func (m *mockStore) SaveComposite(ctx context.Context, clientID string, form types.Composite) (string, error) {
	return "", nil
}
func (m *mockStore) CreateAuthorization(ctx context.Context, clientID string, auth types.Authorization) (string, error) {
	return "", nil
}
func (m *mockStore) UpdateAuthorization(ctx context.Context, auth types.Authorization) error {
	return nil
}
func (m *mockStore) DeleteAuthorization(ctx context.Context, id string) error {
	return nil
}
func (m *mockStore) CreateTask(ctx context.Context, task types.Task) (string, error) {
	return "", nil
}
func (m *mockStore) UpdateTask(ctx context.Context, task types.Task) error {
	return nil
}
func (m *mockStore) CompleteTask(ctx context.Context, id string) error {
	return nil
}
func (m *mockStore) DeleteTask(ctx context.Context, id string) error {
	return nil
}
func (m *mockStore) ListTasks(ctx context.Context, filter types.TaskFilter) ([]types.Task, error) {
	return nil, nil
}
func (m *mockStore) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
func (m *mockStore) GenerateSnapshot(ctx context.Context, path string) error {
	return nil
}
func (m *mockStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	return nil, nil
}
func (m *mockStore) Close() error {
	return nil
}
