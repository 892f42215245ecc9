package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/session"
)

const wsRequestTimeout = 30 * time.Second

type wsError struct {
	Type  runtime.EventType `json:"type"`
	Code  int               `json:"code"`
	Error string            `json:"error"`
}

// streamWebSocket continues a session over a WebSocket. The client sends one
// SessionRequest frame and receives events as JSON frames; the connection is
// closed after the terminal event.
func (s *Server) streamWebSocket(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.registry.Get(id); err != nil {
		return notFound(err)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already replied
		slog.Debug("WebSocket upgrade failed", "session_id", id, "error", err)
		return nil
	}
	defer conn.Close()

	var req SessionRequest
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		writeWSError(conn, http.StatusBadRequest, "invalid request frame")
		return nil
	}
	_ = conn.SetReadDeadline(time.Time{})

	stream, err := s.start(c.Request().Context(), id, req, session.MustExist)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			writeWSError(conn, he.Code, fmt.Sprint(he.Message))
		} else {
			writeWSError(conn, http.StatusInternalServerError, err.Error())
		}
		return nil
	}

	// Reading is the only way to notice a peer that closed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				closeNormally(conn)
				return nil
			}
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("WebSocket write failed, detaching", "session_id", id, "error", err)
				stream.Detach()
				return nil
			}
		case <-stream.Detached():
			closeNormally(conn)
			return nil
		case <-gone:
			slog.Debug("WebSocket closed by client, detaching", "session_id", id)
			stream.Detach()
			return nil
		}
	}
}

func writeWSError(conn *websocket.Conn, code int, msg string) {
	_ = conn.WriteJSON(wsError{Type: runtime.ErrorType, Code: code, Error: msg})
	closeNormally(conn)
}

func closeNormally(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
