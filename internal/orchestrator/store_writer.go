package orchestrator

import (
	"context"
	"fmt"

	"github.com/hyperengineering/caseload/internal/store"
	"github.com/hyperengineering/caseload/internal/types"
	"github.com/hyperengineering/caseload/internal/validation"
)

// StoreWriter is a Writer over a local store. Each write is validated first so
// a local save reports the same messages the HTTP API would.
type StoreWriter struct {
	store store.Store
}

// NewStoreWriter wraps s as a Writer.
func NewStoreWriter(s store.Store) *StoreWriter {
	return &StoreWriter{store: s}
}

var _ Writer = (*StoreWriter)(nil)

func (w *StoreWriter) CreateClient(ctx context.Context, fields types.ClientFields) (string, error) {
	if errs := validation.ValidateClientFields(fields); len(errs) > 0 {
		return "", validation.Errors(errs)
	}
	c, err := w.store.CreateClient(ctx, fields)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (w *StoreWriter) UpdateClient(ctx context.Context, id string, fields types.ClientFields) error {
	if errs := validation.ValidateClientFields(fields); len(errs) > 0 {
		return validation.Errors(errs)
	}
	return w.store.UpdateClient(ctx, id, fields)
}

func (w *StoreWriter) CreateChild(ctx context.Context, kind types.ChildKind, clientID string, child types.Child) (string, error) {
	if child.Kind() != kind {
		return "", fmt.Errorf("%w: %s row in %s collection", store.ErrUnknownKind, child.Kind(), kind)
	}
	if errs := validation.ValidateChild("", child); len(errs) > 0 {
		return "", validation.Errors(errs)
	}
	return w.store.CreateChild(ctx, clientID, child)
}

func (w *StoreWriter) UpdateChild(ctx context.Context, kind types.ChildKind, id string, child types.Child) error {
	if child.Kind() != kind {
		return fmt.Errorf("%w: %s row in %s collection", store.ErrUnknownKind, child.Kind(), kind)
	}
	if errs := validation.ValidateChild("", child); len(errs) > 0 {
		return validation.Errors(errs)
	}
	return w.store.UpdateChild(ctx, types.WithChildID(child, id))
}
