// Package app dispatches parsed CLI commands onto the live session, the
// one-shot speech commands, and the diagnostics.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rbright/studyvoice/internal/audio"
	"github.com/rbright/studyvoice/internal/cli"
	"github.com/rbright/studyvoice/internal/config"
	"github.com/rbright/studyvoice/internal/doctor"
	"github.com/rbright/studyvoice/internal/fsm"
	"github.com/rbright/studyvoice/internal/ipc"
	"github.com/rbright/studyvoice/internal/logging"
	"github.com/rbright/studyvoice/internal/pipeline"
	"github.com/rbright/studyvoice/internal/playback"
	"github.com/rbright/studyvoice/internal/session"
	"github.com/rbright/studyvoice/internal/version"
)

const binaryName = "studyvoice"

// errReported marks a failure whose output has already been written.
var errReported = errors.New("reported")

// Runner executes one CLI invocation against the configured writers.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute runs args with a fresh Runner and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute returns 0 on success, 1 on a runtime failure, and 2 on a usage error.
func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	switch {
	case parsed.ShowHelp:
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	case parsed.Command == cli.CommandVersion:
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	return r.exit(r.dispatch(ctx, parsed))
}

func (r Runner) exit(err error) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, errReported) {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
	}
	return 1
}

func (r Runner) dispatch(ctx context.Context, parsed cli.Parsed) error {
	loaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		return err
	}

	logRuntime, err := logging.New(loaded.Config.Debug.LogLevel)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}
	r.reportWarnings(loaded.Warnings, logger)
	logger.Info("command start", "command", parsed.Command, "config", loaded.Path, "log", logRuntime.Path)

	cfg := loaded.Config
	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, loaded, newBackend(cfg))
		fmt.Fprintln(r.Stdout, report.String())
		if !report.OK() {
			return errReported
		}
		return nil
	case cli.CommandDevices:
		return r.listDevices(ctx)
	case cli.CommandStatus:
		return r.status(ctx)
	case cli.CommandStop:
		return r.forward(ctx, ipc.Request{Command: ipc.CommandStop})
	case cli.CommandSay:
		return r.forward(ctx, ipc.Request{Command: ipc.CommandSay, Text: parsed.Text})
	case cli.CommandToggle:
		return r.live(ctx, cfg, logger, true)
	case cli.CommandLive:
		return r.live(ctx, cfg, logger, false)
	case cli.CommandSpeak:
		return r.speak(ctx, cfg, logger, parsed.Text)
	case cli.CommandTranscribe:
		return r.transcribe(ctx, cfg, parsed.Path)
	default:
		return fmt.Errorf("unsupported command %q", parsed.Command)
	}
}

func (r Runner) reportWarnings(warnings []config.Warning, logger *slog.Logger) {
	for _, w := range warnings {
		where := ""
		if w.Line > 0 {
			where = fmt.Sprintf("line %d: ", w.Line)
		}
		fmt.Fprintf(r.Stderr, "warning: %s%s\n", where, w.Message)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
}

// listDevices prints Pulse inputs as a table; the default source is starred.
func (r Runner) listDevices(ctx context.Context) error {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return errors.New("no audio input devices found")
	}

	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDESCRIPTION\tSTATE\tAVAILABLE\tMUTED")
	for _, d := range devices {
		mark := ""
		if d.Default {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, d.ID, d.Description, d.State, yesNo(d.Available), yesNo(d.Muted))
	}
	return tw.Flush()
}

// status prints the owner's state, or idle when no owner is listening.
func (r Runner) status(ctx context.Context) error {
	state := string(fsm.StateIdle)
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, state)
		return nil
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus})
	if err != nil {
		return err
	}
	if handled && resp.State != "" {
		state = resp.State
	}
	fmt.Fprintln(r.Stdout, state)
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return nil
}

// forward sends req to the owner and fails when there is none.
func (r Runner) forward(ctx context.Context, req ipc.Request) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		return fmt.Errorf("no active %s session", binaryName)
	}
	return r.printForwarded(resp, err)
}

// live becomes the session owner. With toggle set, a running owner receives a
// toggle instead.
func (r Runner) live(ctx context.Context, cfg config.Config, logger *slog.Logger, toggle bool) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	if toggle {
		if resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandToggle}); handled {
			return r.printForwarded(resp, err)
		}
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{Logger: logger})
	if errors.Is(err, ipc.ErrAlreadyRunning) && toggle {
		// Another owner won the race after the first forward attempt.
		resp, _, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandToggle})
		return r.printForwarded(resp, err)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	sess, err := newLiveSession(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	served := make(chan error, 1)
	go func() { served <- ipc.Serve(serveCtx, listener, sess.controller) }()

	result := sess.controller.Run(ctx)
	stopServing()
	if err := <-served; err != nil {
		return fmt.Errorf("ipc server failed: %w", err)
	}

	logSessionResult(logger, result)
	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		return result.Err
	}
	fmt.Fprintf(r.Stdout, "session ended after %d turns\n", result.Turns)
	return nil
}

func (r Runner) printForwarded(resp ipc.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return nil
}

// speak says text once through the remote synthesizer with the configured
// fallback.
func (r Runner) speak(ctx context.Context, cfg config.Config, logger *slog.Logger, text string) error {
	speaker := newSpeaker(cfg, newBackend(cfg), logger)
	opts := playback.Options{Emotion: cfg.Playback.Emotion, AgeGroup: cfg.Playback.AgeGroup}
	if err := speaker.Speak(ctx, text, opts); err != nil {
		return err
	}
	if !speaker.RemoteAvailable() {
		logger.Info("spoken with fallback synthesizer")
	}
	return nil
}

// transcribe sends a WAV file to the backend recognizer.
func (r Runner) transcribe(ctx context.Context, cfg config.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := audio.DecodeWAV(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	result, err := newBackend(cfg).Transcribe(ctx, data, pipeline.STTLanguage(cfg.Recognition.Language))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.Stdout, strings.TrimSpace(result.Text))
	return nil
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"state", result.State,
		"turns", result.Turns,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsUnavailable(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
