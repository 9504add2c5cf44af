package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// SSETransport writes frames as text/event-stream records ("data: <json>\n\n").
type SSETransport struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSETransport writes the stream headers and flushes them so proxies see
// the response start immediately.
func NewSSETransport(w http.ResponseWriter) (*SSETransport, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	t := &SSETransport{w: w, rc: http.NewResponseController(w)}
	if err := t.rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse: streaming unsupported: %w", err)
	}
	return t, nil
}

func (t *SSETransport) WriteFrame(ctx context.Context, frame []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", frame); err != nil {
		return err
	}
	return t.rc.Flush()
}

// Close is a no-op: the response ends when the handler returns.
func (t *SSETransport) Close() error { return nil }
