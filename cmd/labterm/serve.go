package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/labterm"
	"pkt.systems/labterm/core"
	"pkt.systems/labterm/httpapi"
	"pkt.systems/labterm/internal/appconfig"
	"pkt.systems/labterm/schema"
	"pkt.systems/labterm/sshserver"
	"pkt.systems/pslog"
)

const serveBanner = `
 _       _     _
| | __ _| |__ | |_ ___ _ __ _ __ ___
| |/ _' | '_ \| __/ _ \ '__| '_ ' _ \
| | (_| | |_) | ||  __/ |  | | | | | |
|_|\__,_|_.__/ \__\___|_|  |_| |_| |_|

`

func newServeCmd() *cobra.Command {
	var cfgPath string
	var disableAuditTrails bool
	var noBanner bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SSH lab terminal and the HTTP admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logMode := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_MODE")))
			if !noBanner && logMode != "json" && logMode != "structured" {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), serveBanner)
			}
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			if strings.TrimSpace(cfg.HTTP.Addr) != "" && cfg.HTTP.AdminToken == "" {
				logger.Warn("http admin token not set; control endpoints are unauthenticated", "addr", cfg.HTTP.Addr)
			}

			serverDeps := labterm.ServerDeps{
				ServiceDeps: core.ServiceDeps{Logger: logger},
			}
			server, err := labterm.New(toServerConfig(cfg), serverDeps, serverOptions(cfg)...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("labterm starting", "lab", cfg.Terminal.DefaultLab, "duration_seconds", cfg.Terminal.DefaultDurationSeconds, "transcripts", cfg.Transcripts.Enabled)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for commands")
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "disable startup banner")
	return cmd
}

// serverOptions enables each front end that has a listen address.
func serverOptions(cfg appconfig.Config) []labterm.ServerOption {
	var opts []labterm.ServerOption
	if strings.TrimSpace(cfg.HTTP.Addr) != "" {
		opts = append(opts, labterm.WithHTTP())
	}
	if strings.TrimSpace(cfg.SSH.Addr) != "" {
		opts = append(opts, labterm.WithSSH())
	}
	return opts
}

func toServerConfig(cfg appconfig.Config) labterm.ServerConfig {
	return labterm.ServerConfig{
		Service:     cfg.ServiceConfig(),
		HTTP:        toHTTPConfig(cfg.HTTP),
		SSH:         toSSHConfig(cfg),
		Auth:        toAuthConfig(cfg.Auth),
		Transcripts: labterm.TranscriptConfig{Enabled: cfg.Transcripts.Enabled, Dir: cfg.Transcripts.Dir},
	}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:          cfg.Addr,
		BasePath:      cfg.BasePath,
		AdminToken:    cfg.AdminToken,
		StreamHistory: cfg.StreamHistory,
	}
}

func toSSHConfig(cfg appconfig.Config) sshserver.Config {
	return sshserver.Config{
		Addr:            cfg.SSH.Addr,
		HostKeyPath:     cfg.SSH.HostKeyPath,
		DefaultLab:      schema.LabID(cfg.Terminal.DefaultLab),
		DurationSeconds: cfg.Terminal.DefaultDurationSeconds,
	}
}

func toAuthConfig(cfg appconfig.AuthConfig) labterm.AuthConfig {
	seeds := make([]labterm.SeedUser, 0, len(cfg.SeedUsers))
	for _, seed := range cfg.SeedUsers {
		seeds = append(seeds, labterm.SeedUser{
			Username:     seed.Username,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	return labterm.AuthConfig{
		UserFile:  cfg.UserFile,
		SeedUsers: seeds,
	}
}
