package drawing

import "errors"

var (
	// ErrDuplicateStroke is returned when stroke_start reuses an id.
	ErrDuplicateStroke = errors.New("drawing: stroke id already exists")
	// ErrUnknownStroke is returned when an op references a stroke id
	// that was never started, on the authoritative (server) path.
	ErrUnknownStroke = errors.New("drawing: unknown stroke id")
	// ErrAlreadyCommitted is returned when stroke_points/stroke_end
	// targets a stroke that has already been frozen.
	ErrAlreadyCommitted = errors.New("drawing: stroke already committed")
	// ErrNotOwner is returned when a user tries to extend or end a
	// stroke owned by someone else.
	ErrNotOwner = errors.New("drawing: stroke owned by another user")
	// ErrUnknownStrokeMirror is the replicated-path counterpart of
	// ErrUnknownStroke: the mirror never fails loudly on a missing
	// stroke (it can legitimately miss the stroke_start near a join),
	// it just drops the op. Callers should log and continue.
	ErrUnknownStrokeMirror = errors.New("drawing: unknown stroke id (mirror, dropped)")
)
