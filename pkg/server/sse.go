package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docker/deskpilot/pkg/runtime"
)

// writeSSE relays the stream as server-sent events until the invocation
// ends or the client goes away. A departing client only detaches.
func (s *Server) writeSSE(c echo.Context, stream *runtime.Stream) error {
	w := c.Response()
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(HeaderConversationID, stream.SessionID())
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				slog.Debug("Event consumer went away", "session_id", stream.SessionID(), "error", err)
				stream.Detach()
				return nil
			}

		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				stream.Detach()
				return nil
			}
			w.Flush()

		case <-stream.Detached():
			return nil

		case <-ctx.Done():
			slog.Debug("Client disconnected, detaching", "session_id", stream.SessionID())
			stream.Detach()
			return nil
		}
	}
}

func writeEvent(w *echo.Response, ev runtime.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.GetType(), err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.GetType(), data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
