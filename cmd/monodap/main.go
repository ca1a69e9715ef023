// Copyright 2026 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// monodap serves the Debug Adapter Protocol in front of a debugging engine,
// on stdio by default or on a TCP listener with one session per connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tombee/monodap/internal/engine"
	"github.com/tombee/monodap/internal/engine/enginetest"
	"github.com/tombee/monodap/internal/log"
	"github.com/tombee/monodap/internal/session"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "monodap:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		listenAddr     string
		metricsAddr    string
		resolverSocket string
		engineName     string
		logLevel       string
		logFormat      string
	)

	cmd := &cobra.Command{
		Use:   "monodap",
		Short: "monodap - Debug Adapter Protocol server for Mono debuggees",
		Long: `monodap bridges Debug Adapter Protocol clients to an asynchronous
debugging engine holding a live connection to a debuggee process.

By default one session is served over stdio, the transport editors spawn
debug adapters with. With --listen the adapter accepts TCP connections
instead and serves one session per connection.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel, logFormat)

			newEngine, err := engineFactory(engineName)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, serveOptions{
				logger:         logger,
				newEngine:      newEngine,
				listenAddr:     listenAddr,
				metricsAddr:    metricsAddr,
				resolverSocket: resolverSocket,
			})
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "TCP address to listen on (default: serve stdio)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (disabled when empty)")
	cmd.Flags().StringVar(&resolverSocket, "resolver-socket", "", "unix socket of the external type resolver (disabled when empty)")
	cmd.Flags().StringVar(&engineName, "engine", "sim", "debugging engine to serve (sim: in-process simulation engine)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (default: MONODAP_LOG_LEVEL or info)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format: text or json (default: MONODAP_LOG_FORMAT or text)")

	return cmd
}

// newLogger builds the process logger from the environment, with flags
// taking precedence. Logs always go to stderr: stdout may be the DAP
// transport.
func newLogger(level, format string) *slog.Logger {
	cfg := log.FromEnv()
	if level != "" {
		cfg.Level = level
	}
	if format != "" {
		cfg.Format = log.Format(format)
	}
	cfg.Output = os.Stderr
	return log.New(cfg)
}

// engineFactory maps the --engine flag to a per-session engine constructor.
// Engines owning a real debuggee wire connection implement engine.Engine
// and are added here.
func engineFactory(name string) (func() engine.Engine, error) {
	switch name {
	case "sim":
		return func() engine.Engine { return enginetest.New() }, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

type serveOptions struct {
	logger         *slog.Logger
	newEngine      func() engine.Engine
	listenAddr     string
	metricsAddr    string
	resolverSocket string
}

func serve(ctx context.Context, opts serveOptions) error {
	reg := prometheus.NewRegistry()
	mtr := session.NewMetrics(reg)

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				opts.logger.Warn("metrics server stopped", log.Error(err))
			}
		}()
		defer srv.Close()
		opts.logger.Info("metrics listening", slog.String("addr", opts.metricsAddr))
	}

	cfg := session.DefaultConfig()
	cfg.ResolverSocket = opts.resolverSocket

	if opts.listenAddr == "" {
		opts.logger.Info("serving DAP on stdio",
			slog.String("version", version))
		conn := stdioConn{}
		stop := context.AfterFunc(ctx, func() { _ = os.Stdin.Close() })
		defer stop()
		sess := session.New(conn, opts.newEngine(), cfg, opts.logger, mtr)
		return sess.Run(ctx)
	}

	ln, err := net.Listen("tcp", opts.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.listenAddr, err)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	opts.logger.Info("serving DAP",
		slog.String("addr", ln.Addr().String()), slog.String("version", version))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go func() {
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()

			logger := opts.logger.With(slog.String("remote", conn.RemoteAddr().String()))
			logger.Info("client connected")
			sess := session.New(conn, opts.newEngine(), cfg, logger, mtr)
			if err := sess.Run(ctx); err != nil {
				logger.Warn("session ended", log.Error(err))
				return
			}
			logger.Info("client disconnected")
		}()
	}
}

// stdioConn adapts the process's standard streams to the connection shape
// the session reads and writes.
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioConn) Close() error                { return nil }
