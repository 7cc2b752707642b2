package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/cli"
	"github.com/grovetools/chordsync/config"
	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/internal/metrics"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/pkg/models"
)

func NewWatchCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the client state in sync with the node",
		Long: `Runs the session monitor and the push event channel until interrupted.
Notices, relayed events and session changes are printed as they happen.
Edits to the configuration files are picked up and reapply the logging
settings; other settings take effect on the next start.

Examples:
  chordsync watch
  chordsync watch --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.NewLogger("watch")

			e, err := engine.New(cfg, engine.WithMetrics(metrics.Default()))
			if err != nil {
				return err
			}
			defer e.Shutdown()

			if metricsAddr == "" {
				metricsAddr = cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				srv := serveMetrics(metricsAddr, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			verbose := cli.GetOptions(cmd).Verbose
			watcher, err := config.NewWatcher(path, cfg.Watch.Debounce.Std(), func(next *config.Config, err error) {
				if err != nil {
					logger.WithError(err).Warn("Ignoring invalid configuration change")
					e.Store().Notify(store.NoticeError, fmt.Sprintf("Configuration change ignored: %v", err))
					return
				}
				if err := cli.ConfigureLogging(next, verbose); err != nil {
					logger.WithError(err).Warn("Failed to apply logging configuration")
				}
				e.Store().BroadcastConfigReload(path)
			})
			if err != nil {
				logger.WithError(err).Warn("Config reloading disabled")
			} else {
				go watcher.Start(ctx)
			}

			printer := &updatePrinter{w: cmd.OutOrStdout()}
			updates := e.Store().Subscribe()
			defer e.Store().Unsubscribe(updates)

			e.Start(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), cli.MutedStyle.Render(fmt.Sprintf("Watching %s (Ctrl-C to stop)", cfg.BaseURL)))

			for {
				select {
				case <-ctx.Done():
					return nil
				case u, ok := <-updates:
					if !ok {
						return nil
					}
					printer.print(u)
				}
			}
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	return cmd
}

func serveMetrics(addr string, logger *logrus.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
	return srv
}

// updatePrinter writes the operator-facing updates. Slice and flow churn is
// left to the debug log. Identities are observed on every session check, so
// only changes are printed.
type updatePrinter struct {
	w       io.Writer
	seen    bool
	current string
}

func (p *updatePrinter) print(u store.Update) {
	switch u.Type {
	case store.UpdateNotice:
		if n, ok := u.Payload.(store.Notice); ok {
			fmt.Fprintln(p.w, noticeLine(n))
		}
	case store.UpdateEvent:
		if ev, ok := u.Payload.(store.EventRelayed); ok {
			fmt.Fprintln(p.w, cli.MutedStyle.Render(fmt.Sprintf("event %s", ev.Type)))
		}
	case store.UpdateSession:
		user, _ := u.Payload.(*models.User)
		sub := ""
		if user != nil {
			sub = user.Sub
		}
		if p.seen && sub == p.current {
			return
		}
		p.seen, p.current = true, sub
		if user == nil {
			fmt.Fprintln(p.w, cli.ErrorStyle.Render("Not signed in"))
			return
		}
		name := user.PreferredUsername
		if name == "" {
			name = user.Sub
		}
		fmt.Fprintln(p.w, cli.SuccessStyle.Render(fmt.Sprintf("Signed in as %s (%s)", name, user.Role)))
	case store.UpdateConfigReload:
		fmt.Fprintln(p.w, cli.MutedStyle.Render(fmt.Sprintf("Reloaded %v", u.Payload)))
	}
}
