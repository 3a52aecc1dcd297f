// Package orchestrator persists a composite client form through a sequence of
// independent writes: the client record first, then every meaningful child row
// of the guardian, location, and insurance collections.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hyperengineering/caseload/internal/types"
	"golang.org/x/sync/errgroup"
)

// DefaultCollectionConcurrency is the number of child collections written at once.
const DefaultCollectionConcurrency = 3

var (
	// ErrSaveInProgress is returned when Save is called while another save is running.
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrUnexpected is returned when the flow fails in a way no writer reported.
	ErrUnexpected = errors.New("An unexpected error occurred")
)

// Form is the whole client form: scalar fields plus the three child collections.
type Form = types.Composite

// Writer is the set of remote writes a save is made of.
type Writer interface {
	CreateClient(ctx context.Context, fields types.ClientFields) (string, error)
	UpdateClient(ctx context.Context, id string, fields types.ClientFields) error
	CreateChild(ctx context.Context, kind types.ChildKind, clientID string, child types.Child) (string, error)
	UpdateChild(ctx context.Context, kind types.ChildKind, id string, child types.Child) error
}

// Navigator moves the caller to another view once a save has succeeded.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Mode selects between creating a new client and editing an existing one.
type Mode struct {
	clientID string
}

// CreateMode saves the form as a new client.
func CreateMode() Mode { return Mode{} }

// EditMode saves the form over the existing client id.
func EditMode(clientID string) Mode { return Mode{clientID: clientID} }

// IsEdit reports whether the mode updates an existing client.
func (m Mode) IsEdit() bool { return m.clientID != "" }

// ClientID returns the client being edited, empty in create mode.
func (m Mode) ClientID() string { return m.clientID }

// DetailPath returns the view path of a client.
func DetailPath(clientID string) string {
	return "/clients/" + clientID
}

// State is the lifecycle of the most recent save.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Op is the kind of write dispatched for a child row.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// ParentError is returned when the client write fails. Its message is the
// writer's message unchanged so it can be shown on the form as is.
type ParentError struct {
	Op  Op
	Err error
}

func (e *ParentError) Error() string { return e.Err.Error() }
func (e *ParentError) Unwrap() error { return e.Err }

// ChildError records one failed child write.
type ChildError struct {
	Kind types.ChildKind
	// Index is the row's position in its collection on the form.
	Index   int
	ChildID string
	Op      Op
	Err     error
}

func (e ChildError) Error() string {
	if e.ChildID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.ChildID, e.Err)
	}
	return fmt.Sprintf("%s %s[%d]: %v", e.Op, e.Kind, e.Index, e.Err)
}

func (e ChildError) Unwrap() error { return e.Err }

// Result describes a save whose client write succeeded.
type Result struct {
	ClientID string
	Path     string
	// Written counts child writes that succeeded.
	Written     int
	ChildErrors []ChildError
}

// Partial reports whether some child rows failed to persist.
func (r *Result) Partial() bool {
	return len(r.ChildErrors) > 0
}

// Orchestrator sequences the writes of one form submission at a time.
type Orchestrator struct {
	writer      Writer
	navigator   Navigator
	concurrency int

	mu    sync.Mutex
	state State
}

// New creates an Orchestrator. navigator may be nil. A concurrency below one
// uses DefaultCollectionConcurrency.
func New(writer Writer, navigator Navigator, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = DefaultCollectionConcurrency
	}
	return &Orchestrator{
		writer:      writer,
		navigator:   navigator,
		concurrency: concurrency,
	}
}

// State returns the state of the most recent save.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSubmitting {
		return false
	}
	o.state = StateSubmitting
	return true
}

func (o *Orchestrator) finish(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Save persists form. The client write comes first; if it fails Save returns a
// *ParentError and nothing else is written. Child rows are then written per
// collection, and child failures are reported in the Result rather than as an
// error. Navigation to the client's detail view happens once the client write
// succeeds. A save already running causes ErrSaveInProgress.
func (o *Orchestrator) Save(ctx context.Context, form Form, mode Mode) (result *Result, err error) {
	if !o.begin() {
		return nil, ErrSaveInProgress
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("save panicked",
				"component", "orchestrator",
				"panic", r,
			)
			result, err = nil, ErrUnexpected
		}
		if err != nil {
			o.finish(StateFailed)
			return
		}
		o.finish(StateSucceeded)
	}()

	clientID, err := o.saveParent(ctx, form.ClientFields, mode)
	if err != nil {
		slog.Warn("client write failed",
			"component", "orchestrator",
			"edit", mode.IsEdit(),
			"error", err,
		)
		return nil, err
	}

	result = &Result{ClientID: clientID, Path: DetailPath(clientID)}
	if panicked := o.saveChildren(ctx, clientID, form, result); panicked {
		return nil, ErrUnexpected
	}

	if o.navigator != nil {
		o.navigator.Navigate(result.Path)
	}

	slog.Info("client saved",
		"component", "orchestrator",
		"client_id", clientID,
		"edit", mode.IsEdit(),
		"child_writes", result.Written,
		"child_errors", len(result.ChildErrors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (o *Orchestrator) saveParent(ctx context.Context, fields types.ClientFields, mode Mode) (string, error) {
	if mode.IsEdit() {
		if err := o.writer.UpdateClient(ctx, mode.ClientID(), fields); err != nil {
			return "", &ParentError{Op: OpUpdate, Err: err}
		}
		return mode.ClientID(), nil
	}

	id, err := o.writer.CreateClient(ctx, fields)
	if err != nil {
		return "", &ParentError{Op: OpCreate, Err: err}
	}
	if id == "" {
		return "", fmt.Errorf("%w: create returned no client id", ErrUnexpected)
	}
	return id, nil
}

// saveChildren writes every collection and fills result. It reports whether
// any collection panicked.
func (o *Orchestrator) saveChildren(ctx context.Context, clientID string, form Form, result *Result) bool {
	var (
		mu       sync.Mutex
		panicked bool
	)
	record := func(written int, errs []ChildError) {
		mu.Lock()
		defer mu.Unlock()
		result.Written += written
		result.ChildErrors = append(result.ChildErrors, errs...)
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, kind := range types.ChildKinds {
		children := form.Children(kind)
		if len(children) == 0 {
			continue
		}
		kind := kind
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("child collection panicked",
						"component", "orchestrator",
						"kind", kind,
						"panic", r,
					)
					mu.Lock()
					panicked = true
					mu.Unlock()
				}
			}()
			record(o.saveCollection(ctx, kind, clientID, children))
			return nil
		})
	}
	_ = g.Wait()

	sortChildErrors(result.ChildErrors)
	return panicked
}

// saveCollection writes the meaningful rows of one collection in form order.
// A failed row does not stop the rows after it.
func (o *Orchestrator) saveCollection(ctx context.Context, kind types.ChildKind, clientID string, children []types.Child) (int, []ChildError) {
	var (
		written int
		errs    []ChildError
	)
	for i, child := range children {
		if !child.Meaningful() {
			continue
		}

		op := OpCreate
		var err error
		if id := child.ChildID(); id != "" {
			op = OpUpdate
			err = o.writer.UpdateChild(ctx, kind, id, child)
		} else {
			_, err = o.writer.CreateChild(ctx, kind, clientID, child)
		}

		if err != nil {
			slog.Warn("child write failed",
				"component", "orchestrator",
				"client_id", clientID,
				"kind", kind,
				"index", i,
				"op", op,
				"error", err,
			)
			errs = append(errs, ChildError{Kind: kind, Index: i, ChildID: child.ChildID(), Op: op, Err: err})
			continue
		}
		written++
	}
	return written, errs
}

func sortChildErrors(errs []ChildError) {
	order := make(map[types.ChildKind]int, len(types.ChildKinds))
	for i, k := range types.ChildKinds {
		order[k] = i
	}
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Kind != errs[j].Kind {
			return order[errs[i].Kind] < order[errs[j].Kind]
		}
		return errs[i].Index < errs[j].Index
	})
}
