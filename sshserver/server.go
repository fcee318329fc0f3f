package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/labterm/core"
	"pkt.systems/labterm/internal/eventbus"
	"pkt.systems/labterm/internal/logx"
	"pkt.systems/labterm/internal/version"
	"pkt.systems/labterm/schema"
	"pkt.systems/pslog"
)

// Config defines SSH server settings.
type Config struct {
	Addr        string
	HostKeyPath string
	// DefaultLab is used when the client does not send LAB_ID.
	DefaultLab schema.LabID
	// DurationSeconds overrides the service default countdown when positive.
	DurationSeconds int
}

// Server exposes lab terminal sessions over SSH.
type Server struct {
	Config
	Listener  net.Listener
	Service   core.Service
	AuthStore LoginAuthStore
	EventBus  *eventbus.Bus
	logger    pslog.Logger
}

// LoginAuthStore validates SSH login credentials.
type LoginAuthStore interface {
	Authenticate(username, password, totpCode string) error
	ValidatePassword(username, password string) error
	ValidateTOTP(username, totpCode string) error
	HasTOTP(username string) bool
	HasLoginPubKey(userID schema.UserID, key ssh.PublicKey) (bool, error)
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// labEnv is the client environment variable selecting the lab id.
const labEnv = "LAB_ID"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Service == nil {
		return errors.New("service is required for SSH")
	}
	if s.AuthStore == nil {
		return errors.New("auth store is required for SSH")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:                       s.Addr,
		Version:                    version.SSHVersion(),
		Handler:                    s.handleSession,
		PublicKeyHandler:           s.handlePublicKey,
		PasswordHandler:            s.handlePassword,
		KeyboardInteractiveHandler: s.handleKeyboardInteractive,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("ssh server listening", "addr", s.Addr)

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) authLogger(ctx gliderssh.Context) pslog.Logger {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log = log.With("user", ctx.User(), "remote", remoteAddr(ctx))
	if id := ctx.SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}
	return log
}

// handlePublicKey accepts a registered login key outright unless the user
// has a second factor, in which case keyboard-interactive asks for the code only.
func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.authLogger(ctx).With("fingerprint", ssh.FingerprintSHA256(key))
	userID := schema.UserID(ctx.User())
	if userID == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing user")
		return false
	}
	ok, err := s.AuthStore.HasLoginPubKey(userID, key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Debug("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	if s.AuthStore.HasTOTP(ctx.User()) {
		ctx.SetValue(loginPubKeyOK, true)
		log.Info("ssh pubkey accepted", "next", "totp")
		return false
	}
	log.Info("ssh pubkey accepted")
	return true
}

// handlePassword serves clients that skip keyboard-interactive; it only admits
// users without a second factor.
func (s *Server) handlePassword(ctx gliderssh.Context, password string) bool {
	log := s.authLogger(ctx)
	if s.AuthStore.HasTOTP(ctx.User()) {
		log.Warn("ssh password rejected", "reason", "totp required")
		return false
	}
	if err := s.AuthStore.ValidatePassword(ctx.User(), password); err != nil {
		log.Warn("ssh password rejected", "err", err)
		return false
	}
	log.Info("ssh password accepted")
	return true
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	log := s.authLogger(ctx)
	username := ctx.User()
	if ctx.Value(loginPubKeyOK) == true {
		code, err := askOne(challenger, username, "Verification code: ", false)
		if err != nil {
			log.Warn("ssh totp rejected", "err", err)
			return false
		}
		if err := s.AuthStore.ValidateTOTP(username, code); err != nil {
			log.Warn("ssh totp rejected", "reason", "invalid code", "err", err)
			return false
		}
		log.Info("ssh totp accepted")
		return true
	}

	questions := []string{"Password: "}
	echos := []bool{false}
	if s.AuthStore.HasTOTP(username) {
		questions = append(questions, "Verification code: ")
		echos = append(echos, false)
	}
	answers, err := challenger(username, "", questions, echos)
	if err != nil {
		log.Warn("ssh login rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != len(questions) {
		log.Warn("ssh login rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	code := ""
	if len(answers) > 1 {
		code = answers[1]
	}
	if err := s.AuthStore.Authenticate(username, answers[0], code); err != nil {
		log.Warn("ssh login rejected", "err", err)
		return false
	}
	log.Info("ssh login accepted", "totp", len(answers) > 1)
	return true
}

func askOne(challenger ssh.KeyboardInteractiveChallenge, user, question string, echo bool) (string, error) {
	answers, err := challenger(user, "", []string{question}, []bool{echo})
	if err != nil {
		return "", fmt.Errorf("challenge failed: %w", err)
	}
	if len(answers) != 1 {
		return "", fmt.Errorf("invalid answer count %d", len(answers))
	}
	return answers[0], nil
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	userID := schema.UserID(sess.User())
	remote := sess.RemoteAddr().String()
	if userID == "" {
		log.Info("ssh session rejected", "reason", "missing user", "remote", remote)
		_, _ = io.WriteString(sess, "missing user\n")
		return
	}
	log = log.With("user", userID, "remote", remote)
	if id := sess.Context().SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}

	lab := labFromEnv(sess.Environ(), s.DefaultLab)
	ended := make(chan schema.EndReason, 1)
	ctx := logx.ContextWithUser(pslog.ContextWithLogger(sess.Context(), log), userID)
	created, err := s.Service.CreateSession(ctx, schema.CreateSessionRequest{
		UserID:          userID,
		LabID:           lab,
		DurationSeconds: s.DurationSeconds,
		OnEnd: func(reason schema.EndReason) {
			select {
			case ended <- reason:
			default:
			}
		},
	})
	if err != nil {
		log.Warn("ssh session rejected", "reason", "create failed", "err", err)
		_, _ = io.WriteString(sess, "unable to start lab session\n")
		return
	}
	sessionID := created.Session.ID
	log = log.With("session", sessionID)
	ctx = logx.ContextWithUserSessionLogger(sess.Context(), log, userID, sessionID)
	log.Info("ssh session opened", "term", pty.Term, "lab", lab)

	var events <-chan eventbus.Event
	if s.EventBus != nil {
		var unsubscribe func()
		events, unsubscribe = s.EventBus.Subscribe(sessionID)
		defer unsubscribe()
	}

	ui := NewTerminal(sess, TerminalConfig{
		Service:   s.Service,
		SessionID: sessionID,
		UserID:    userID,
		Term:      pty.Term,
		Events:    events,
		Ended:     ended,
	})
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	reason, err := ui.Run(ctx, windowChanges(ctx, winCh))
	if err != nil {
		log.Warn("ssh terminal failed", "err", err)
	}
	if _, err := s.Service.CloseSession(context.WithoutCancel(ctx), schema.CloseSessionRequest{SessionID: sessionID}); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
		log.Warn("ssh session close failed", "err", err)
	}
	if reason != "" {
		_, _ = io.WriteString(sess, EndedMessage(reason)+"\r\n")
		_ = sess.Exit(0)
	}
	log.Info("ssh session closed", "term", pty.Term, "reason", reason)
}

func windowChanges(ctx context.Context, in <-chan gliderssh.Window) <-chan Window {
	out := make(chan Window, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case win, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Window{Width: win.Width, Height: win.Height}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func labFromEnv(environ []string, fallback schema.LabID) schema.LabID {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if ok && name == labEnv && strings.TrimSpace(value) != "" {
			return schema.LabID(strings.TrimSpace(value))
		}
	}
	return fallback
}
