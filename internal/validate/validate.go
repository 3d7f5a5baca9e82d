// Package validate schema-checks and clamps untrusted client drawing
// operations before they are allowed anywhere near room state. It has
// no notion of rooms, users, or ownership — that is the Drawing
// State's job.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"drawroom/internal/drawing"
)

// ErrMalformed is returned for any payload that fails schema checks.
// The dispatcher surfaces its text verbatim in the ack.
var ErrMalformed = errors.New("malformed op")

const maxPoints = drawing.MaxPointsPerMessage

type wireOp struct {
	T      string          `json:"t"`
	ID     *string         `json:"id"`
	Tool   *string         `json:"tool"`
	Color  *string         `json:"color"`
	Width  *float64        `json:"width"`
	X      *float64        `json:"x"`
	Y      *float64        `json:"y"`
	Points *[][2]float64 `json:"points"`
}

// Op validates and normalizes a raw client operation. On success the
// returned drawing.Op is exactly what Drawing State should apply.
func Op(raw json.RawMessage) (drawing.Op, error) {
	var w wireOp
	if err := json.Unmarshal(raw, &w); err != nil {
		return drawing.Op{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch drawing.OpType(w.T) {
	case drawing.OpStrokeStart:
		return validateStrokeStart(w)
	case drawing.OpStrokePoints:
		return validateStrokePoints(w)
	case drawing.OpStrokeEnd:
		return validateStrokeEnd(w)
	case drawing.OpUndo:
		return drawing.Op{Type: drawing.OpUndo}, nil
	case drawing.OpRedo:
		return drawing.Op{Type: drawing.OpRedo}, nil
	default:
		return drawing.Op{}, fmt.Errorf("%w: unknown op type %q", ErrMalformed, w.T)
	}
}

func validateStrokeStart(w wireOp) (drawing.Op, error) {
	if w.ID == nil || *w.ID == "" {
		return drawing.Op{}, fmt.Errorf("%w: stroke_start requires a non-empty id", ErrMalformed)
	}
	if w.Tool == nil || !drawing.ValidTool(drawing.Tool(*w.Tool)) {
		return drawing.Op{}, fmt.Errorf("%w: stroke_start requires a known tool", ErrMalformed)
	}
	if w.Color == nil || *w.Color == "" {
		return drawing.Op{}, fmt.Errorf("%w: stroke_start requires a non-empty color", ErrMalformed)
	}
	if w.Width == nil || !finite(*w.Width) {
		return drawing.Op{}, fmt.Errorf("%w: stroke_start requires a finite width", ErrMalformed)
	}
	if w.X == nil || !finite(*w.X) || w.Y == nil || !finite(*w.Y) {
		return drawing.Op{}, fmt.Errorf("%w: stroke_start requires finite x, y", ErrMalformed)
	}
	return drawing.Op{
		Type:  drawing.OpStrokeStart,
		ID:    *w.ID,
		Tool:  drawing.Tool(*w.Tool),
		Color: *w.Color,
		Width: clampWidth(*w.Width),
		X:     *w.X,
		Y:     *w.Y,
	}, nil
}

func validateStrokePoints(w wireOp) (drawing.Op, error) {
	if w.ID == nil || *w.ID == "" {
		return drawing.Op{}, fmt.Errorf("%w: stroke_points requires a non-empty id", ErrMalformed)
	}
	if w.Points == nil || len(*w.Points) == 0 {
		return drawing.Op{}, fmt.Errorf("%w: stroke_points requires a non-empty points array", ErrMalformed)
	}
	raw := *w.Points
	if len(raw) > maxPoints {
		raw = raw[:maxPoints]
	}
	points := make([]drawing.Point, 0, len(raw))
	for _, pair := range raw {
		if !finite(pair[0]) || !finite(pair[1]) {
			return drawing.Op{}, fmt.Errorf("%w: stroke_points contains a non-finite coordinate", ErrMalformed)
		}
		points = append(points, drawing.Point{X: pair[0], Y: pair[1]})
	}
	return drawing.Op{
		Type:   drawing.OpStrokePoints,
		ID:     *w.ID,
		Points: points,
	}, nil
}

func validateStrokeEnd(w wireOp) (drawing.Op, error) {
	if w.ID == nil || *w.ID == "" {
		return drawing.Op{}, fmt.Errorf("%w: stroke_end requires a non-empty id", ErrMalformed)
	}
	return drawing.Op{Type: drawing.OpStrokeEnd, ID: *w.ID}, nil
}

func clampWidth(w float64) int {
	rounded := int(math.Round(w))
	if rounded < 1 {
		return 1
	}
	if rounded > 64 {
		return 64
	}
	return rounded
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
