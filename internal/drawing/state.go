package drawing

import (
	"sync"
	"time"
)

// MaxPointsPerMessage bounds the per-message work a single
// stroke_points op can cost: extra points beyond this are truncated
// by the validator before State ever sees them.
const MaxPointsPerMessage = 200

// Result is what applying a client op produces. Broadcast is nil when
// the op was a no-op (undo/redo that found nothing to act on); callers
// must not bump a sequence counter or emit an envelope in that case.
type Result struct {
	Broadcast *Op
}

// State is a single room's drawing aggregate: the stroke registry,
// the committed/undone sets, the committed order, and the redo stack.
// It is not safe without external synchronization at the Room layer,
// but it guards its own fields with a mutex so it can also be driven
// directly by tests and by the client-side reorder buffer.
type State struct {
	mu sync.Mutex

	strokes        map[string]*Stroke
	committed      map[string]struct{}
	committedOrder []string
	undone         map[string]struct{}
	redoStack      []string
}

// New returns an empty drawing state.
func New() *State {
	return &State{
		strokes:   make(map[string]*Stroke),
		committed: make(map[string]struct{}),
		undone:    make(map[string]struct{}),
	}
}

// Apply is the authoritative entry point used by the server-side
// Session Dispatcher: ownership is strictly enforced.
func (s *State) Apply(userID string, op Op) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(userID, op, true)
}

// ApplyMirror replicates an already-validated broadcast envelope onto
// a client-side mirror (the reorder buffer). Ownership is not
// rechecked — the server already enforced it — and a stroke_points
// for an unknown stroke id returns ErrUnknownStrokeMirror instead of
// failing loudly, since that can legitimately happen for a stroke
// started just before this client joined.
func (s *State) ApplyMirror(userID string, op Op) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(userID, op, false)
}

func (s *State) apply(userID string, op Op, enforceOwnership bool) (Result, error) {
	switch op.Type {
	case OpStrokeStart:
		return s.applyStrokeStart(userID, op)
	case OpStrokePoints:
		return s.applyStrokePoints(userID, op, enforceOwnership)
	case OpStrokeEnd:
		return s.applyStrokeEnd(userID, op, enforceOwnership)
	case OpUndo:
		if !enforceOwnership {
			return s.applyMirrorUndo(op)
		}
		return s.applyUndo()
	case OpRedo:
		if !enforceOwnership {
			return s.applyMirrorRedo(op)
		}
		return s.applyRedo()
	default:
		return Result{}, ErrUnknownStroke
	}
}

func (s *State) applyStrokeStart(userID string, op Op) (Result, error) {
	if _, exists := s.strokes[op.ID]; exists {
		return Result{}, ErrDuplicateStroke
	}
	now := time.Now()
	s.strokes[op.ID] = &Stroke{
		ID:        op.ID,
		UserID:    userID,
		Tool:      op.Tool,
		Color:     op.Color,
		Width:     op.Width,
		Points:    []Point{{X: op.X, Y: op.Y}},
		Committed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return Result{Broadcast: &op}, nil
}

func (s *State) applyStrokePoints(userID string, op Op, enforceOwnership bool) (Result, error) {
	stroke, ok := s.strokes[op.ID]
	if !ok {
		if enforceOwnership {
			return Result{}, ErrUnknownStroke
		}
		return Result{}, ErrUnknownStrokeMirror
	}
	if stroke.Committed {
		return Result{}, ErrAlreadyCommitted
	}
	if enforceOwnership && stroke.UserID != userID {
		return Result{}, ErrNotOwner
	}
	stroke.Points = append(stroke.Points, op.Points...)
	stroke.UpdatedAt = time.Now()
	return Result{Broadcast: &op}, nil
}

func (s *State) applyStrokeEnd(userID string, op Op, enforceOwnership bool) (Result, error) {
	stroke, ok := s.strokes[op.ID]
	if !ok {
		if enforceOwnership {
			return Result{}, ErrUnknownStroke
		}
		return Result{}, ErrUnknownStrokeMirror
	}
	if stroke.Committed {
		return Result{}, ErrAlreadyCommitted
	}
	if enforceOwnership && stroke.UserID != userID {
		return Result{}, ErrNotOwner
	}
	stroke.Committed = true
	stroke.UpdatedAt = time.Now()
	s.committed[op.ID] = struct{}{}
	s.committedOrder = append(s.committedOrder, op.ID)
	s.redoStack = s.redoStack[:0]
	delete(s.undone, op.ID)
	return Result{Broadcast: &op}, nil
}

func (s *State) applyUndo() (Result, error) {
	for i := len(s.committedOrder) - 1; i >= 0; i-- {
		id := s.committedOrder[i]
		if _, isCommitted := s.committed[id]; !isCommitted {
			continue
		}
		if _, isUndone := s.undone[id]; isUndone {
			continue
		}
		s.undone[id] = struct{}{}
		s.redoStack = append(s.redoStack, id)
		return Result{Broadcast: &Op{Type: OpUndo, StrokeID: id}}, nil
	}
	return Result{}, nil
}

func (s *State) applyRedo() (Result, error) {
	for len(s.redoStack) > 0 {
		id := s.redoStack[len(s.redoStack)-1]
		s.redoStack = s.redoStack[:len(s.redoStack)-1]
		_, isCommitted := s.committed[id]
		_, isUndone := s.undone[id]
		if !isCommitted || !isUndone {
			continue
		}
		delete(s.undone, id)
		return Result{Broadcast: &Op{Type: OpRedo, StrokeID: id}}, nil
	}
	return Result{}, nil
}

// applyMirrorUndo honors the authoritative op.StrokeID the broadcast
// envelope carries instead of recomputing a target by scanning
// committedOrder: a late joiner's committedOrder is seeded from
// SnapshotView's map iteration, which has no defined order, so a
// recomputed undo could tombstone a different stroke than the server
// and every from-start client chose.
func (s *State) applyMirrorUndo(op Op) (Result, error) {
	s.undone[op.StrokeID] = struct{}{}
	return Result{Broadcast: &Op{Type: OpUndo, StrokeID: op.StrokeID}}, nil
}

// applyMirrorRedo is applyMirrorUndo's counterpart.
func (s *State) applyMirrorRedo(op Op) (Result, error) {
	delete(s.undone, op.StrokeID)
	return Result{Broadcast: &Op{Type: OpRedo, StrokeID: op.StrokeID}}, nil
}

// SnapshotView is the sync payload handed to a late joiner: all
// committed strokes (any order), all in-progress strokes, and the
// currently-undone ids.
type SnapshotView struct {
	Committed  []*Stroke
	InProgress []*Stroke
	Undone     []string
}

func (s *State) SnapshotView() SnapshotView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := SnapshotView{Undone: make([]string, 0, len(s.undone))}
	for id := range s.undone {
		view.Undone = append(view.Undone, id)
	}
	for _, stroke := range s.strokes {
		if stroke.Committed {
			view.Committed = append(view.Committed, stroke.Clone())
		} else {
			view.InProgress = append(view.InProgress, stroke.Clone())
		}
	}
	return view
}

// PersistenceSnapshot is what gets written to disk: committed history
// only, in the order it was committed. In-progress strokes are
// deliberately omitted — they never survive a restart.
type PersistenceSnapshot struct {
	Seq            uint64    `json:"seq"`
	Strokes        []*Stroke `json:"strokes"`
	Undone         []string  `json:"undone"`
	CommittedOrder []string  `json:"committedOrder"`
	RedoStack      []string  `json:"redoStack"`
}

func (s *State) PersistenceView(seq uint64) PersistenceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := PersistenceSnapshot{
		Seq:            seq,
		Strokes:        make([]*Stroke, 0, len(s.committedOrder)),
		Undone:         make([]string, 0, len(s.undone)),
		CommittedOrder: append([]string(nil), s.committedOrder...),
		RedoStack:      append([]string(nil), s.redoStack...),
	}
	for _, id := range s.committedOrder {
		if stroke, ok := s.strokes[id]; ok {
			snap.Strokes = append(snap.Strokes, stroke.Clone())
		}
	}
	for id := range s.undone {
		snap.Undone = append(snap.Undone, id)
	}
	return snap
}

// Restore seeds the state from a persisted snapshot. Every stroke
// arrives already committed. Per the open question recorded in
// DESIGN.md, invariants are not re-validated here: a corrupted but
// parseable file restores verbatim.
func (s *State) Restore(snap PersistenceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strokes = make(map[string]*Stroke, len(snap.Strokes))
	s.committed = make(map[string]struct{}, len(snap.Strokes))
	for _, stroke := range snap.Strokes {
		cp := stroke.Clone()
		cp.Committed = true
		s.strokes[cp.ID] = cp
		s.committed[cp.ID] = struct{}{}
	}
	s.committedOrder = append([]string(nil), snap.CommittedOrder...)
	s.undone = make(map[string]struct{}, len(snap.Undone))
	for _, id := range snap.Undone {
		s.undone[id] = struct{}{}
	}
	s.redoStack = append([]string(nil), snap.RedoStack...)
}
