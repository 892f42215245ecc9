package root

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/session"
	"github.com/docker/deskpilot/pkg/transcript"
)

var errSessionFailed = errors.New("session ended with an error")

type runFlags struct {
	root          *rootFlags
	backend       string
	model         string
	mode          string
	maxTurns      int
	jsonOutput    bool
	transcriptDir string
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := runFlags{root: root}

	cmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Run one instruction against the desktop and print its events",
		Example: `  # Let the default backend take its default number of turns
  deskpilot run "open the terminal and list the home directory"

  # Run to completion with the tool-calling backend, as JSON lines
  deskpilot run --backend toolcall --mode complete --json "open firefox"`,
		GroupID: "core",
		Args:    cobra.MinimumNArgs(1),
		RunE:    flags.runRunCommand,
	}

	cmd.Flags().StringVarP(&flags.backend, "backend", "b", "", "Decision backend: native, structured or toolcall")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Model override for the backend")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "Iteration mode: single, fixed or complete")
	cmd.Flags().IntVar(&flags.maxTurns, "max-turns", 0, "Maximum number of turns in fixed mode")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print events as JSON lines")
	cmd.Flags().StringVar(&flags.transcriptDir, "transcript-dir", "", "Write the session transcript to this directory")

	return cmd
}

func (f *runFlags) runRunCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mode, err := runtime.ParseMode(f.mode)
	if err != nil {
		return err
	}

	cfg, err := f.root.loadConfig(ctx)
	if err != nil {
		return err
	}

	backends, err := newBackends(ctx, cfg.Backends)
	if err != nil {
		return err
	}
	kind, err := defaultBackend(cfg, backends)
	if err != nil {
		return err
	}
	if f.backend != "" {
		if kind, err = backend.ParseKind(f.backend); err != nil {
			return err
		}
	}

	shared := newDesktop(cfg.Desktop)
	defer func() {
		if err := shared.Close(); err != nil {
			slog.Warn("Failed to close desktop", "error", err)
		}
	}()

	sess, _, err := session.NewRegistry().GetOrCreate("", strings.Join(args, " "), kind, session.CreateIfMissing)
	if err != nil {
		return err
	}
	if f.model != "" {
		sess.SetModel(f.model)
	}

	policy := runtime.Policy{Mode: mode, MaxTurns: f.maxTurns}
	stream, err := runtime.NewLoop(backends, shared).Start(ctx, sess, runtime.Options{
		MaxTurns:        policy.Turns(kind, cfg.Loop.CompleteMaxTurns),
		SettleDelay:     cfg.Loop.SettleDelay,
		DecisionTimeout: cfg.Loop.DecisionTimeout,
		Verbose:         cfg.Loop.Verbose,
		Backend:         kind,
	})
	if err != nil {
		return err
	}

	p := &eventPrinter{w: cmd.OutOrStdout(), json: f.jsonOutput}
	failed, err := drain(ctx, stream, p)
	if err != nil {
		return err
	}

	if dir := f.transcriptDirFor(cfg.Transcripts.Dir); dir != "" {
		path, err := transcript.Save(dir, transcript.New(sess, time.Now()))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Transcript written to "+path)
	}

	if failed {
		return errSessionFailed
	}
	return nil
}

func (f *runFlags) transcriptDirFor(configured string) string {
	if f.transcriptDir != "" {
		return f.transcriptDir
	}
	return configured
}

// drain prints every event until the stream closes. Cancelling ctx detaches.
func drain(ctx context.Context, stream *runtime.Stream, p *eventPrinter) (failed bool, err error) {
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				<-stream.Done()
				return failed, nil
			}
			if ev.GetType() == runtime.ErrorType {
				failed = true
			}
			if err := p.print(ev); err != nil {
				stream.Detach()
				return failed, err
			}
		case <-ctx.Done():
			stream.Detach()
			return failed, errors.New("interrupted")
		}
	}
}
