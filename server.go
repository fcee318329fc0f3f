package labterm

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/labterm/core"
	"pkt.systems/labterm/httpapi"
	"pkt.systems/labterm/internal/appconfig"
	"pkt.systems/labterm/internal/auth"
	"pkt.systems/labterm/internal/eventbus"
	"pkt.systems/labterm/internal/persist"
	"pkt.systems/labterm/schema"
	"pkt.systems/labterm/sshserver"
	"pkt.systems/pslog"
)

// Server composes the SSH front end and the HTTP admin API around one service.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service     schema.ServiceConfig
	HTTP        httpapi.Config
	SSH         sshserver.Config
	Auth        AuthConfig
	Transcripts TranscriptConfig
}

// AuthConfig defines authentication storage settings.
type AuthConfig struct {
	UserFile  string
	SeedUsers []SeedUser
}

// SeedUser seeds an initial user record.
type SeedUser struct {
	Username     string
	PasswordHash string
	TOTPSecret   string
}

// TranscriptConfig controls archiving of ended sessions.
type TranscriptConfig struct {
	Enabled bool
	Dir     string
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableSSH  bool
}

// WithHTTP enables the HTTP admin API.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH server.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// New constructs a composable labterm server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH {
		return nil, errors.New("no services enabled")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	serviceDeps := deps.ServiceDeps
	logger := serviceDeps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
		serviceDeps.Logger = logger
	}

	var archive *persist.Store
	if cfg.Transcripts.Enabled {
		archive, err = persist.NewStoreWithLogger(cfg.Transcripts.Dir, logger)
		if err != nil {
			return nil, err
		}
		if serviceDeps.Transcripts == nil {
			serviceDeps.Transcripts = archive
		}
	}

	var bus *eventbus.Bus
	var hub *httpapi.Hub
	if options.enableSSH {
		bus = eventbus.New(logger)
	}
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.StreamHistory)
	}
	var busSink, hubSink core.EventSink
	if bus != nil {
		busSink = bus
	}
	if hub != nil {
		hubSink = hub
	}
	serviceDeps.EventSink = newEventSink(serviceDeps.EventSink, busSink, hubSink)

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}

	srv := &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
	}
	if options.enableHTTP {
		var transcripts httpapi.TranscriptArchive
		if archive != nil {
			transcripts = archive
		}
		srv.httpSrv = httpapi.NewServer(cfg.HTTP, service, hub, transcripts)
	}
	if options.enableSSH {
		store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, toSeedUsers(cfg.Auth.SeedUsers), logger)
		if err != nil {
			return nil, err
		}
		sshCfg := cfg.SSH
		if sshCfg.DefaultLab == "" {
			sshCfg.DefaultLab = cfg.Service.DefaultLab
		}
		srv.sshSrv = &sshserver.Server{
			Config:    sshCfg,
			Service:   service,
			AuthStore: store,
			EventBus:  bus,
		}
	}
	return srv, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	httpSrv *httpapi.Server
	sshSrv  *sshserver.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh_addr", s.cfg.SSH.Addr,
		"transcripts", s.cfg.Transcripts.Enabled,
	)
	if s.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop cancels the listeners and closes every live session, archiving transcripts.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if s.service != nil {
		if err := s.service.Shutdown(ctx); err != nil {
			log.Warn("server stop timed out", "err", err)
			return err
		}
	}
	log.Info("server stopped")
	return nil
}

func toSeedUsers(users []SeedUser) []appconfig.SeedUser {
	if len(users) == 0 {
		return nil
	}
	out := make([]appconfig.SeedUser, 0, len(users))
	for _, user := range users {
		out = append(out, appconfig.SeedUser{
			Username:     user.Username,
			PasswordHash: user.PasswordHash,
			TOTPSecret:   user.TOTPSecret,
		})
	}
	return out
}
