package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/session"
	"github.com/docker/deskpilot/pkg/transcript"
)

// SessionRequest starts or continues a session.
type SessionRequest struct {
	ConversationID string         `json:"conversationId,omitempty"`
	Instruction    string         `json:"instruction,omitempty"`
	Backend        string         `json:"backend,omitempty"`
	Model          string         `json:"model,omitempty"`
	Policy         runtime.Policy `json:"policy"`
	Verbose        bool           `json:"verbose,omitempty"`
}

func (s *Server) startSession(c echo.Context) error {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	stream, err := s.start(c.Request().Context(), req.ConversationID, req, session.CreateIfMissing)
	if err != nil {
		return err
	}
	return s.writeSSE(c, stream)
}

func (s *Server) stepSession(c echo.Context) error {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	stream, err := s.start(c.Request().Context(), c.Param("id"), req, session.MustExist)
	if err != nil {
		return err
	}
	return s.writeSSE(c, stream)
}

// start resolves the session and launches an invocation. Every failure is
// returned as an *echo.HTTPError, before anything is streamed.
func (s *Server) start(ctx context.Context, id string, req SessionRequest, policy session.Policy) (*runtime.Stream, error) {
	mode, err := runtime.ParseMode(string(req.Policy.Mode))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Policy.Mode = mode
	if req.Policy.MaxTurns < 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "maxTurns must not be negative")
	}

	requested, err := s.parseBackend(req.Backend)
	if err != nil {
		return nil, err
	}
	kind := requested
	if kind == "" {
		kind = s.defaultBackend
	}

	sess, isNew, err := s.registry.GetOrCreate(id, req.Instruction, kind, policy)
	switch {
	case errors.Is(err, session.ErrInstructionRequired):
		return nil, echo.NewHTTPError(http.StatusBadRequest, "instruction is required")
	case errors.Is(err, session.ErrNotFound):
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, session.ErrEmptyID):
		return nil, echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	case err != nil:
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if isNew && req.Model != "" {
		sess.SetModel(req.Model)
	}

	effective := requested
	if effective == "" {
		effective = sess.Backend()
	}
	st := s.settings.Load()
	opts := runtime.Options{
		MaxTurns:        req.Policy.Turns(effective, st.CompleteMaxTurns),
		SettleDelay:     st.SettleDelay,
		Verbose:         st.Verbose || req.Verbose,
		DecisionTimeout: st.DecisionTimeout,
		ShareDesktop:    st.ShareDesktop,
		Backend:         requested,
	}
	if !isNew {
		opts.Model = req.Model
	}

	stream, err := s.loop.Start(ctx, sess, opts)
	switch {
	case errors.Is(err, runtime.ErrConflict):
		return nil, echo.NewHTTPError(http.StatusConflict, "conversation is already running")
	case errors.Is(err, backend.ErrUnknownKind):
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	slog.Debug("Invocation started", "session_id", sess.ID, "backend", effective, "new", isNew, "max_turns", opts.MaxTurns)
	s.track(sess, stream)
	return stream, nil
}

func (s *Server) parseBackend(name string) (backend.Kind, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	kind, err := backend.ParseKind(name)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := s.backends.Get(kind); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("backend %q is not configured", kind))
	}
	return kind, nil
}

// track remembers the stream so it can be detached by id, and writes the
// transcript once the invocation ends.
func (s *Server) track(sess *session.Session, stream *runtime.Stream) {
	s.mu.Lock()
	s.streams[sess.ID] = stream
	s.mu.Unlock()

	go func() {
		<-stream.Done()

		s.mu.Lock()
		if s.streams[sess.ID] == stream {
			delete(s.streams, sess.ID)
		}
		s.mu.Unlock()

		if s.transcriptDir == "" {
			return
		}
		path, err := transcript.Save(s.transcriptDir, transcript.New(sess, time.Now()))
		if err != nil {
			slog.Error("Failed to save transcript", "session_id", sess.ID, "error", err)
			return
		}
		slog.Debug("Transcript saved", "session_id", sess.ID, "path", path)
	}()
}

// status reports the session without counting as a use. turnCount is the
// number of completed turns.
func (s *Server) status(c echo.Context) error {
	st, err := s.registry.Status(c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, st)
}

// history returns every entry in append order. An entry's turn is 1-based,
// so entries recorded before the first turn completes carry turn 1.
func (s *Server) history(c echo.Context) error {
	sess, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, sess.History())
}

// detach stops delivering events of the running invocation. The invocation
// itself keeps going.
func (s *Server) detach(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.registry.Get(id); err != nil {
		return notFound(err)
	}

	s.mu.Lock()
	stream := s.streams[id]
	s.mu.Unlock()

	if stream != nil {
		stream.Detach()
		slog.Debug("Stream detached", "session_id", id)
	}
	return c.NoContent(http.StatusNoContent)
}

func notFound(err error) error {
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrEmptyID) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
