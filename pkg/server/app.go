package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"OptionsFlow/internal/handler/mcp"
	"OptionsFlow/pkg/config"
	xhttp "OptionsFlow/pkg/http"
	pkgkafka "OptionsFlow/pkg/kafka"
	applogger "OptionsFlow/pkg/logger"
)

// Name and Version are reported to tool clients on initialize.
var (
	Name    = "options-flow"
	Version = "dev"
)

// App encapsulates the application lifecycle: the stdio and HTTP tool
// transports plus the resources they share.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	mcp        *mcp.Server
	httpServer *xhttp.Server
	broker     io.Closer
	producer   *pkgkafka.Producer

	stdin  io.Reader
	stdout io.Writer
}

// New creates a new App instance. httpServer and producer may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	mcpServer *mcp.Server,
	httpServer *xhttp.Server,
	broker io.Closer,
	producer *pkgkafka.Producer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		mcp:        mcpServer,
		httpServer: httpServer,
		broker:     broker,
		producer:   producer,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}
}

// SetStdio replaces the process stdin/stdout used by the stdio transport.
func (a *App) SetStdio(r io.Reader, w io.Writer) {
	a.stdin, a.stdout = r, w
}

// Run starts the enabled transports and blocks until a signal arrives, the
// stdio peer closes its end, or a transport fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Transport.Stdio {
		g.Go(func() error {
			// EOF on stdin ends the session
			defer cancel()
			err := a.mcp.ServeStdio(gctx, a.stdin, a.stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if a.httpServer != nil {
		g.Go(func() error {
			return a.httpServer.Run(gctx)
		})
	}

	a.log.Info("options flow server started",
		applogger.String("broker", a.cfg.BrokerTarget()),
		applogger.Bool("stdio", a.cfg.Transport.Stdio),
		applogger.Bool("http", a.httpServer != nil),
	)

	err := g.Wait()
	if err != nil {
		a.log.Error("transport stopped with error", applogger.Error(err))
	}
	a.shutdown()
	return err
}

// shutdown releases shared resources once every transport has returned.
func (a *App) shutdown() {
	a.log.Info("shutting down...")

	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Warn("broker client close error", applogger.Error(err))
		}
	}

	// flush buffered error logs before the producer goes away
	a.log.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
