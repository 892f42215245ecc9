package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/desktop"
	"github.com/docker/deskpilot/pkg/session"
)

// ErrConflict is returned when the session already has an invocation in flight.
var ErrConflict = errors.New("session is already running")

const tracerName = "github.com/docker/deskpilot/pkg/runtime"

// Locker grants exclusive use of the desktop for a whole invocation.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type LoopOption func(*Loop)

func WithTracer(t trace.Tracer) LoopOption {
	return func(l *Loop) { l.tracer = t }
}

func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) { l.now = now }
}

// Loop runs the observe, decide, act cycle for sessions.
type Loop struct {
	backends backend.Set
	desktop  desktop.Desktop
	executor *action.Executor
	tracer   trace.Tracer
	now      func() time.Time
}

// NewLoop creates a loop over the given backends and desktop. If the desktop
// also implements Locker, invocations take its lock unless they opt out.
func NewLoop(backends backend.Set, d desktop.Desktop, opts ...LoopOption) *Loop {
	l := &Loop{
		backends: backends,
		desktop:  d,
		executor: action.NewExecutor(d),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start claims sess and runs one invocation in the background. It fails with
// ErrConflict, without touching the session, if an invocation is already running.
//
// The invocation does not inherit ctx cancellation: a caller that goes away
// only detaches from the stream.
func (l *Loop) Start(ctx context.Context, sess *session.Session, opts Options) (*Stream, error) {
	if opts.Backend != "" {
		if _, err := l.backends.Get(opts.Backend); err != nil {
			return nil, err
		}
	}

	kind, ok := sess.TryStart(opts.Backend)
	if !ok {
		return nil, ErrConflict
	}

	b, err := l.backends.Get(kind)
	if err != nil {
		sess.Finish()
		return nil, err
	}

	s := newStream(sess.ID, l.now)
	inv := &invocation{
		loop:    l,
		sess:    sess,
		backend: b,
		opts:    opts,
		stream:  s,
	}
	go inv.run(context.WithoutCancel(ctx))

	return s, nil
}

// invocation is the state of one run. It is owned by a single goroutine.
type invocation struct {
	loop    *Loop
	sess    *session.Session
	backend backend.Backend
	opts    Options
	stream  *Stream
	metrics Metrics
}

func (inv *invocation) run(ctx context.Context) {
	// Runs last, so Done observers see an idle session and an ended span.
	defer inv.stream.finish()

	start := inv.loop.now()
	kind := inv.backend.Kind()

	ctx, span := inv.loop.tracer.Start(ctx, "invocation", trace.WithAttributes(
		attribute.String("session.id", inv.sess.ID),
		attribute.String("backend", string(kind)),
	))
	defer span.End()
	// The session is released before the terminal event is published, so a
	// consumer reacting to it can start the next invocation right away.
	defer inv.sess.Finish()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Turn loop panicked", "session_id", inv.sess.ID, "panic", r, "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, "panic")
			inv.sess.Finish()
			inv.stream.publish(Error(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	slog.Debug("Starting invocation", "session_id", inv.sess.ID, "backend", kind)

	reason, err := inv.execute(ctx)
	if err != nil {
		slog.Error("Invocation failed", "session_id", inv.sess.ID, "backend", kind, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		inv.sess.Finish()
		inv.stream.publish(Error(err.Error()))
		return
	}

	done := SessionComplete(reason, inv.sess.TurnCount(), len(inv.sess.History()))
	if inv.opts.Verbose {
		m := inv.metrics
		m.Elapsed = inv.loop.now().Sub(start)
		done.Metrics = &m
	}
	slog.Debug("Invocation complete", "session_id", inv.sess.ID, "reason", reason, "turns", inv.metrics.Turns)
	inv.sess.Finish()
	inv.stream.publish(done)
}

func (inv *invocation) execute(ctx context.Context) (CompletionReason, error) {
	if locker, ok := inv.loop.desktop.(Locker); ok && !inv.opts.ShareDesktop {
		release, err := locker.Acquire(ctx)
		if err != nil {
			return "", fmt.Errorf("acquiring desktop: %w", err)
		}
		defer release()
	}

	inv.screenshot(ctx, inv.sess.TurnCount()+1)

	kind := inv.backend.Kind()
	maxTurns := inv.opts.MaxTurns
	if maxTurns < 1 {
		maxTurns = kind.DefaultMaxTurns()
	}
	model := inv.opts.Model
	if model == "" {
		model = inv.sess.Model()
	}

	conv, err := inv.backend.Start(ctx, backend.Request{
		SessionID:   inv.sess.ID,
		Instruction: inv.sess.Instruction,
		Prompt:      ComposePrompt(inv.sess.Instruction, inv.sess.History()),
		Model:       model,
		MaxTurns:    maxTurns,
	})
	if err != nil {
		return "", fmt.Errorf("starting %s backend: %w", kind, err)
	}
	defer func() {
		if err := conv.Close(); err != nil {
			slog.Warn("Failed to close conversation", "session_id", inv.sess.ID, "error", err)
		}
	}()

	for range maxTurns {
		turn := inv.sess.TurnCount() + 1

		decision, err := inv.decide(ctx, conv, turn)
		if err != nil {
			return "", fmt.Errorf("decision failed: %w", err)
		}

		if decision.Narrative != "" {
			inv.sess.AddNarrative(decision.Narrative)
			inv.stream.publish(Narrative(turn, decision.Narrative))
		}
		if decision.Done() {
			return ReasonDone, nil
		}

		outcomes := make([]action.Outcome, 0, len(decision.Actions))
		for i, d := range decision.Actions {
			outcomes = append(outcomes, inv.dispatch(ctx, turn, i, d))
		}

		if err := conv.Observe(ctx, outcomes); err != nil {
			return "", fmt.Errorf("reporting action results: %w", err)
		}

		count := inv.sess.CompleteTurn()
		inv.metrics.Turns++
		inv.stream.publish(TurnComplete(turn, count, len(outcomes)))
	}

	return ReasonMaxTurns, nil
}

func (inv *invocation) decide(ctx context.Context, conv backend.Conversation, turn int) (*backend.Decision, error) {
	ctx, span := inv.loop.tracer.Start(ctx, "decision", trace.WithAttributes(attribute.Int("turn", turn)))
	defer span.End()

	if inv.opts.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.opts.DecisionTimeout)
		defer cancel()
	}

	d, err := conv.Next(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if d == nil {
		d = &backend.Decision{}
	}
	span.SetAttributes(attribute.Int("actions", len(d.Actions)))
	return d, nil
}

func (inv *invocation) dispatch(ctx context.Context, turn, index int, d action.Descriptor) action.Outcome {
	ctx, span := inv.loop.tracer.Start(ctx, "action", trace.WithAttributes(
		attribute.String("action.type", string(d.Type)),
		attribute.Int("turn", turn),
	))
	defer span.End()

	inv.stream.publish(ActionProposed(turn, index, d))
	inv.sess.AddAction(d)

	start := inv.loop.now()
	res := inv.loop.executor.Execute(ctx, d)

	inv.metrics.Actions++
	if res.Failed() {
		inv.metrics.Failures++
		span.SetStatus(codes.Error, res.Error)
	}

	ev := ActionResult(turn, index, d, res)
	if inv.opts.Verbose {
		elapsed := inv.loop.now().Sub(start)
		ev.Duration = &elapsed
	}
	inv.stream.publish(ev)
	inv.sess.AddObservation(res)

	if d.Type.ChangesState() {
		inv.settle(ctx)
		inv.screenshot(ctx, turn)
	}

	return action.Outcome{Action: d, Result: res}
}

// screenshot publishes the current screen. A failure is logged and skipped.
func (inv *invocation) screenshot(ctx context.Context, turn int) {
	img, err := inv.loop.desktop.Screenshot(ctx)
	if err != nil {
		slog.Warn("Failed to capture screenshot", "session_id", inv.sess.ID, "error", err)
		return
	}
	inv.stream.publish(Screenshot(turn, img))
}

func (inv *invocation) settle(ctx context.Context) {
	if inv.opts.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(inv.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
