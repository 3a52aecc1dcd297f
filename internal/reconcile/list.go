// Package reconcile keeps a cached client list and its per-status counts in
// step with remote deletions without reloading the list.
package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/hyperengineering/caseload/internal/types"
)

// StatusAll matches every status in a Filter.
const StatusAll = "all"

// Deleter removes a client remotely.
type Deleter interface {
	DeleteClient(ctx context.Context, id string) error
}

// Filter narrows the derived view. An empty Status behaves like StatusAll.
type Filter struct {
	Status string
	Search string
}

// List is a cached page of clients plus the counts shown beside the status filter.
type List struct {
	deleter Deleter

	mu     sync.Mutex
	items  []types.ClientListItem
	counts types.ClientCounts
}

// NewList seeds a List from a server fetch. items and counts are copied.
func NewList(deleter Deleter, items []types.ClientListItem, counts types.ClientCounts) *List {
	return &List{
		deleter: deleter,
		items:   append([]types.ClientListItem(nil), items...),
		counts:  counts.Clone(),
	}
}

// FromClientList seeds a List from a ClientList response.
func FromClientList(deleter Deleter, list *types.ClientList) *List {
	return NewList(deleter, list.Clients, list.Counts)
}

// Delete removes id remotely and, once that succeeds, from the cache. It
// returns false without touching the counts when id is no longer cached. A
// remote failure is returned and leaves the cache unchanged. Readers are not
// blocked while the remote call is in flight.
func (l *List) Delete(ctx context.Context, id string) (bool, error) {
	if err := l.deleter.DeleteClient(ctx, id); err != nil {
		slog.Warn("client delete failed",
			"component", "reconcile",
			"client_id", id,
			"error", err,
		)
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(id)
	if idx < 0 {
		slog.Debug("deleted client not in cache",
			"component", "reconcile",
			"client_id", id,
		)
		return false, nil
	}

	status := l.items[idx].Status
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	l.counts.Total--
	if l.counts.ByStatus != nil {
		if _, ok := l.counts.ByStatus[status]; ok {
			l.counts.ByStatus[status]--
		}
	}

	slog.Info("client removed from list",
		"component", "reconcile",
		"client_id", id,
		"status", status,
		"total", l.counts.Total,
	)
	return true, nil
}

func (l *List) indexOf(id string) int {
	for i, item := range l.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// View derives the displayed rows from the cache. It never mutates the cache.
func (l *List) View(f Filter) []types.ClientListItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := strings.ToLower(f.Search)
	out := make([]types.ClientListItem, 0, len(l.items))
	for _, item := range l.items {
		if f.Status != "" && f.Status != StatusAll && string(item.Status) != f.Status {
			continue
		}
		if query != "" && !matches(item, query) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// matches reports whether any searchable field contains query, which must
// already be lower case.
func matches(item types.ClientListItem, query string) bool {
	fields := []string{
		item.ChildName(),
		item.PrimaryGuardianName,
		item.PrimaryGuardianPhone,
		item.PrimaryGuardianEmail,
		item.PrimaryInsuranceMemberID,
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// Counts returns a copy of the current counts.
func (l *List) Counts() types.ClientCounts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts.Clone()
}

// Items returns a copy of the cached rows.
func (l *List) Items() []types.ClientListItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.ClientListItem(nil), l.items...)
}

// Len returns the number of cached rows.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
