package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hyperengineering/caseload/internal/types"
)

type mockDeleter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockDeleter) DeleteClient(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, id)
	return m.err
}

// seed builds ten clients, three of them active.
func seed() ([]types.ClientListItem, types.ClientCounts) {
	statuses := []types.ClientStatus{
		types.StatusActive, types.StatusActive, types.StatusActive,
		types.StatusWaitlist, types.StatusWaitlist,
		types.StatusInquiry, types.StatusInquiry,
		types.StatusAssessment, types.StatusOnHold, types.StatusDischarged,
	}
	counts := types.NewClientCounts()
	items := make([]types.ClientListItem, len(statuses))
	for i, s := range statuses {
		items[i] = types.ClientListItem{
			ID:             fmt.Sprintf("c%d", i),
			Status:         s,
			ChildFirstName: fmt.Sprintf("Child%d", i),
		}
		counts.Total++
		counts.ByStatus[s]++
	}
	items[3].ChildLastName = "Reyes"
	items[4].PrimaryGuardianEmail = "MARIA@example.com"
	items[5].PrimaryGuardianPhone = "555-0100"
	items[6].PrimaryInsuranceMemberID = "AET-778"
	items[7].PrimaryGuardianName = "Jose Ortiz"
	return items, counts
}

func TestDelete_Success(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)

	removed, err := l.Delete(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	if l.Len() != 9 {
		t.Errorf("Len = %d, want 9", l.Len())
	}
	for _, item := range l.Items() {
		if item.ID == "c1" {
			t.Error("deleted client still cached")
		}
	}

	want := counts.Clone()
	want.Total = 9
	want.ByStatus[types.StatusActive] = 2
	if diff := cmp.Diff(want, l.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestDelete_FailureLeavesCacheUnchanged(t *testing.T) {
	items, counts := seed()
	d := &mockDeleter{err: errors.New("network error")}
	l := NewList(d, items, counts)

	removed, err := l.Delete(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if removed {
		t.Error("removed should be false on failure")
	}

	if diff := cmp.Diff(items, l.Items()); diff != "" {
		t.Errorf("items changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(counts, l.Counts()); diff != "" {
		t.Errorf("counts changed (-want +got):\n%s", diff)
	}
}

// slowDeleter holds each remote delete until release is closed.
type slowDeleter struct {
	started chan string
	release chan struct{}
}

func (d *slowDeleter) DeleteClient(ctx context.Context, id string) error {
	d.started <- id
	<-d.release
	return nil
}

func TestDelete_ReadersNotBlockedByRemoteCall(t *testing.T) {
	items, counts := seed()
	d := &slowDeleter{started: make(chan string, 1), release: make(chan struct{})}
	l := NewList(d, items, counts)

	done := make(chan bool)
	go func() {
		removed, err := l.Delete(context.Background(), "c0")
		if err != nil {
			t.Errorf("delete: %v", err)
		}
		done <- removed
	}()
	<-d.started

	// The remote call is still in flight; the list stays readable.
	if got := len(l.View(Filter{Status: string(types.StatusActive)})); got != 3 {
		t.Errorf("active rows during delete = %d, want 3", got)
	}
	if got := l.Counts().ByStatus[types.StatusActive]; got != 3 {
		t.Errorf("active count during delete = %d, want 3", got)
	}

	close(d.release)
	if !<-done {
		t.Fatal("Delete() = false, want true")
	}
	if got := l.Counts().ByStatus[types.StatusActive]; got != 2 {
		t.Errorf("active count after delete = %d, want 2", got)
	}
}

func TestDelete_TwiceDoesNotDecrementAgain(t *testing.T) {
	items, counts := seed()
	d := &mockDeleter{}
	l := NewList(d, items, counts)
	ctx := context.Background()

	if _, err := l.Delete(ctx, "c3"); err != nil {
		t.Fatal(err)
	}
	after := l.Counts()

	removed, err := l.Delete(ctx, "c3")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("second delete should report no removal")
	}
	if diff := cmp.Diff(after, l.Counts()); diff != "" {
		t.Errorf("counts changed on second delete (-want +got):\n%s", diff)
	}
	if l.Len() != 9 {
		t.Errorf("Len = %d, want 9", l.Len())
	}
}

func TestDelete_UsesStatusFromCache(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)

	// Deleting a filtered-out row still decrements that row's own status.
	view := l.View(Filter{Status: string(types.StatusActive)})
	if len(view) != 3 {
		t.Fatalf("active view = %d, want 3", len(view))
	}
	if _, err := l.Delete(context.Background(), "c9"); err != nil {
		t.Fatal(err)
	}

	got := l.Counts()
	if got.ByStatus[types.StatusDischarged] != 0 {
		t.Errorf("discharged = %d, want 0", got.ByStatus[types.StatusDischarged])
	}
	if got.ByStatus[types.StatusActive] != 3 {
		t.Errorf("active = %d, want 3", got.ByStatus[types.StatusActive])
	}
}

func TestNewList_CopiesSeed(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)

	items[0].ChildFirstName = "Mutated"
	counts.ByStatus[types.StatusActive] = 99

	if l.Items()[0].ChildFirstName == "Mutated" {
		t.Error("list shares items with caller")
	}
	if l.Counts().ByStatus[types.StatusActive] != 3 {
		t.Error("list shares counts with caller")
	}
}

func TestView_StatusFilter(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)

	if got := len(l.View(Filter{})); got != 10 {
		t.Errorf("empty filter = %d, want 10", got)
	}
	if got := len(l.View(Filter{Status: StatusAll})); got != 10 {
		t.Errorf("all = %d, want 10", got)
	}
	if got := len(l.View(Filter{Status: string(types.StatusWaitlist)})); got != 2 {
		t.Errorf("waitlist = %d, want 2", got)
	}
}

func TestView_Search(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)

	tests := []struct {
		search string
		want   []string
	}{
		{"reyes", []string{"c3"}},
		{"child3 rey", []string{"c3"}},
		{"maria@", []string{"c4"}},
		{"0100", []string{"c5"}},
		{"aet-778", []string{"c6"}},
		{"ortiz", []string{"c7"}},
		// Whitespace is part of the query.
		{"  ORTIZ ", nil},
		{" child3", nil},
		{"child3 ", []string{"c3"}},
		{"nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			var got []string
			for _, item := range l.View(Filter{Search: tt.search}) {
				got = append(got, item.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("View(%q) mismatch (-want +got):\n%s", tt.search, diff)
			}
		})
	}
}

func TestView_StatusAndSearch(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)

	got := l.View(Filter{Status: string(types.StatusActive), Search: "reyes"})
	if len(got) != 0 {
		t.Errorf("expected no active Reyes, got %v", got)
	}
	got = l.View(Filter{Status: string(types.StatusWaitlist), Search: "reyes"})
	if len(got) != 1 {
		t.Errorf("expected one waitlist Reyes, got %v", got)
	}
}

func TestView_IsPure(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)
	f := Filter{Status: string(types.StatusActive), Search: "child"}

	first := l.View(f)
	second := l.View(f)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("View not repeatable (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(items, l.Items()); diff != "" {
		t.Errorf("View mutated cache (-want +got):\n%s", diff)
	}

	// Mutating a returned view does not reach the cache.
	first[0].ChildFirstName = "Changed"
	if l.View(f)[0].ChildFirstName == "Changed" {
		t.Error("View returned cached rows by reference")
	}
}

func TestFromClientList(t *testing.T) {
	items, counts := seed()
	l := FromClientList(&mockDeleter{}, &types.ClientList{Clients: items, Counts: counts, Total: 10})
	if l.Len() != 10 || l.Counts().Total != 10 {
		t.Errorf("Len = %d Total = %d, want 10/10", l.Len(), l.Counts().Total)
	}
}

func TestDelete_Concurrent(t *testing.T) {
	items, counts := seed()
	l := NewList(&mockDeleter{}, items, counts)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each id is deleted twice.
			if _, err := l.Delete(context.Background(), fmt.Sprintf("c%d", i%10)); err != nil {
				t.Errorf("delete: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got := l.Counts()
	if got.Total != 0 || l.Len() != 0 {
		t.Errorf("Total = %d Len = %d, want 0/0", got.Total, l.Len())
	}
	for s, n := range got.ByStatus {
		if n != 0 {
			t.Errorf("%s = %d, want 0", s, n)
		}
	}
}
