package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pkt.systems/labterm/core"
	"pkt.systems/labterm/internal/appconfig"
	"pkt.systems/labterm/internal/eventbus"
	"pkt.systems/labterm/internal/logx"
	"pkt.systems/labterm/internal/persist"
	"pkt.systems/labterm/schema"
	"pkt.systems/labterm/sshserver"
	"pkt.systems/pslog"
)

func newLocalCmd() *cobra.Command {
	var cfgPath string
	var user string
	var lab string
	var durationSeconds int
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run a lab session on the local terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			userID, err := localUser(user)
			if err != nil {
				return err
			}
			stdinFd := int(os.Stdin.Fd())
			if !term.IsTerminal(stdinFd) {
				return errors.New("local mode requires an interactive terminal")
			}
			return runLocal(cmd.Context(), cfg, localOptions{
				UserID:          userID,
				LabID:           schema.LabID(strings.TrimSpace(lab)),
				DurationSeconds: durationSeconds,
				In:              os.Stdin,
				Out:             os.Stdout,
			})
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "session user (defaults to $USER)")
	cmd.Flags().StringVarP(&lab, "lab", "l", "", "lab id (defaults to terminal.default_lab)")
	cmd.Flags().IntVarP(&durationSeconds, "duration", "d", 0, "countdown length in seconds")
	return cmd
}

type localOptions struct {
	UserID          schema.UserID
	LabID           schema.LabID
	DurationSeconds int
	In              *os.File
	Out             *os.File
}

func runLocal(ctx context.Context, cfg appconfig.Config, opts localOptions) error {
	logger := pslog.Ctx(ctx)
	bus := eventbus.New(logger)
	deps := core.ServiceDeps{
		EventSink: bus,
		Logger:    logger,
	}
	if cfg.Transcripts.Enabled {
		archive, err := persist.NewStoreWithLogger(cfg.Transcripts.Dir, logger)
		if err != nil {
			return err
		}
		deps.Transcripts = archive
	}
	service, err := core.NewService(cfg.ServiceConfig(), deps)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Warn("local service shutdown failed", "err", err)
		}
	}()

	ended := make(chan schema.EndReason, 1)
	created, err := service.CreateSession(ctx, schema.CreateSessionRequest{
		UserID:          opts.UserID,
		LabID:           opts.LabID,
		DurationSeconds: opts.DurationSeconds,
		OnEnd: func(reason schema.EndReason) {
			select {
			case ended <- reason:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	sessionID := created.Session.ID
	ctx = logx.ContextWithUserSessionLogger(ctx, logger, opts.UserID, sessionID)
	events, unsubscribe := bus.Subscribe(sessionID)
	defer unsubscribe()

	inFd := int(opts.In.Fd())
	state, err := term.MakeRaw(inFd)
	if err != nil {
		return fmt.Errorf("terminal raw mode: %w", err)
	}
	defer func() { _ = term.Restore(inFd, state) }()

	ui := sshserver.NewTerminal(localTTY{Reader: opts.In, Writer: opts.Out}, sshserver.TerminalConfig{
		Service:   service,
		SessionID: sessionID,
		UserID:    opts.UserID,
		Term:      os.Getenv("TERM"),
		Events:    events,
		Ended:     ended,
	})
	width, height := terminalSize(opts.Out)
	ui.SetSize(width, height)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reason, err := ui.Run(runCtx, watchWindow(runCtx, opts.Out))
	if _, closeErr := service.CloseSession(context.WithoutCancel(ctx), schema.CloseSessionRequest{SessionID: sessionID}); closeErr != nil && !errors.Is(closeErr, schema.ErrSessionNotFound) {
		logger.Warn("local session close failed", "err", closeErr)
	}
	_ = term.Restore(inFd, state)
	if reason != "" {
		_, _ = fmt.Fprintln(opts.Out, sshserver.EndedMessage(reason))
	}
	return err
}

type localTTY struct {
	io.Reader
	io.Writer
}

func terminalSize(f *os.File) (int, int) {
	width, height, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, 0
	}
	return width, height
}

// watchWindow reports terminal size changes signalled by SIGWINCH.
func watchWindow(ctx context.Context, f *os.File) <-chan sshserver.Window {
	out := make(chan sshserver.Window, 1)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGWINCH)
	go func() {
		defer signal.Stop(sig)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				width, height := terminalSize(f)
				if width <= 0 || height <= 0 {
					continue
				}
				select {
				case out <- sshserver.Window{Width: width, Height: height}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func localUser(flagValue string) (schema.UserID, error) {
	name := strings.TrimSpace(flagValue)
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(os.Getenv("USER")))
	}
	if name == "" {
		name = "user"
	}
	userID := schema.UserID(name)
	if err := schema.ValidateUserID(userID); err != nil {
		return "", fmt.Errorf("invalid user %q: %w", name, err)
	}
	return userID, nil
}
