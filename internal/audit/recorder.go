package audit

import (
	"context"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
)

type requestIDKey struct{}

// WithRequestID attaches the API request id recorded with writes made
// under ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Recorder adapts a Repository to the command router's write auditor.
type Recorder struct {
	repo Repository
}

// NewRecorder records writes into repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// RecordWrite stores one accepted write.
func (r *Recorder) RecordWrite(ctx context.Context, rec command.WriteRecord) error {
	return r.repo.Create(ctx, &Entry{
		Rack:         rec.Rack,
		Board:        rec.Board,
		Device:       rec.Device,
		Plugin:       rec.Plugin,
		Action:       rec.Action,
		Raw:          rec.Raw,
		Transactions: rec.Transactions,
		RequestID:    RequestID(ctx),
	})
}
