// Package server wires the ramd daemon together: gatekeeper, durable audit
// sinks, the ControlPlane gRPC endpoint, metrics and the background loops,
// and shuts them down in order.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pgElephant/ramd/internal/common"
	"github.com/pgElephant/ramd/internal/dbx"
	"github.com/pgElephant/ramd/internal/filex"
	"github.com/pgElephant/ramd/internal/logging"
	"github.com/pgElephant/ramd/internal/server/archive"
	"github.com/pgElephant/ramd/internal/server/auditlog"
	"github.com/pgElephant/ramd/internal/server/config"
	"github.com/pgElephant/ramd/internal/server/metrics"
	"github.com/pgElephant/ramd/internal/server/models"
	"github.com/pgElephant/ramd/internal/server/repositories/repomanager"
	"github.com/pgElephant/ramd/internal/server/security"

	gs "github.com/pgElephant/ramd/internal/server/grpc"
)

const retentionInterval = time.Hour

var (
	openPostgres         = dbx.OpenPostgres
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newS3Archiver        = archive.NewS3Archiver
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	gk        *security.Gatekeeper
	metrics   *metrics.Metrics
	forwarder *auditlog.Forwarder
	sink      auditlog.Sink
	pg        *auditlog.PostgresSink
	archiver  *archive.S3Archiver
	ops       gs.Operations
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger, ops: gs.NewLoggingOperations(logger)}

	sinks, err := app.openSinks(ctx)
	if err != nil {
		return nil, err
	}

	app.metrics = metrics.New(metrics.StatusFunc(func() models.Status { return app.gk.GetStatus() }))

	opts := []security.Option{security.WithLogger(logger), security.WithObserver(app.metrics)}
	if len(sinks) > 0 {
		app.sink = sinks
		app.forwarder = auditlog.NewForwarder(sinks, logger, auditlog.WithDropHook(app.metrics.AuditDropped))
		opts = append(opts, security.WithAuditPublisher(app.forwarder))
	}

	gk, err := security.New(c, opts...)
	if err != nil {
		app.closeSinks(ctx)
		return nil, err
	}
	app.gk = gk

	if err := app.publishAdminToken(ctx); err != nil {
		gk.Cleanup()
		app.closeSinks(ctx)
		return nil, err
	}

	return app, nil
}

// openSinks builds the durable audit destinations named in the config.
func (app *App) openSinks(ctx context.Context) (auditlog.MultiSink, error) {
	c := app.config
	if !c.EnableAudit {
		return nil, nil
	}

	var sinks auditlog.MultiSink
	fail := func(err error) (auditlog.MultiSink, error) {
		if cerr := sinks.Close(); cerr != nil {
			app.logger.Warn(ctx, "closing audit sinks", "error", cerr)
		}
		return nil, err
	}

	if c.AuditLogFile != "" {
		fs, err := auditlog.NewFileSink(c.AuditLogFile)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", common.ErrConfiguration, err))
		}
		sinks = append(sinks, fs)
	}

	if c.AuditDatabaseDSN != "" {
		db, err := openPostgres(ctx, c.AuditDatabaseDSN)
		if err != nil {
			return fail(fmt.Errorf("audit db init error: %w", err))
		}
		repos := newRepositoryManager()
		if err := repos.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return fail(fmt.Errorf("audit db migrations: %w", err))
		}
		app.pg = auditlog.NewPostgresSink(db, repos)
		sinks = append(sinks, app.pg)
	}

	if c.S3Bucket != "" {
		a, err := newS3Archiver(ctx, c)
		if err != nil {
			return fail(err)
		}
		app.archiver = a
		sinks = append(sinks, a)
	}

	return sinks, nil
}

func (app *App) closeSinks(ctx context.Context) {
	if app.sink == nil {
		return
	}
	if err := app.sink.Close(); err != nil {
		app.logger.Error(ctx, "closing audit sinks", "error", err)
	}
}

// publishAdminToken writes a generated admin token where the operator can
// read it. A configured token is never written anywhere.
func (app *App) publishAdminToken(ctx context.Context) error {
	token, generated := app.gk.AdminToken()
	if !generated || !app.config.EnableAuth {
		return nil
	}

	if path := app.config.AdminTokenFile; path != "" {
		if err := filex.WriteSecret(path, []byte(token+"\n")); err != nil {
			return fmt.Errorf("%w: admin token file: %v", common.ErrConfiguration, err)
		}
		app.logger.Info(ctx, "admin token generated", "file", path)
		return nil
	}

	fmt.Fprintf(os.Stderr, "ramd: generated admin token: %s\n", token)
	app.logger.Warn(ctx, "admin token generated and printed to stderr; set admin_token_file to persist it")
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	opts := []gs.ServerOption{
		gs.WithTLS(app.gk.TLSConfig()),
		gs.WithMaxRecvMsgSize(app.config.MaxRequestSize),
	}
	if app.pg != nil {
		opts = append(opts, gs.WithAuditHistory(app.pg))
	}

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.gk, app.ops, opts...)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) startMetricsServer(ctx context.Context) {
	if err := app.metrics.Serve(ctx, app.config.MetricsAddr, app.logger); err != nil {
		app.logger.Error(ctx, "metrics server failed", "error", err)
	}
}

// every calls fn each period until ctx is cancelled.
func every(ctx context.Context, period time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (app *App) sweep(ctx context.Context) {
	app.gk.Sweep(ctx)
}

func (app *App) archive(ctx context.Context) {
	key, err := app.archiver.Flush(ctx)
	if key == "" && err == nil {
		return
	}
	app.metrics.ObserveArchive(err)
	if err != nil {
		app.logger.Error(ctx, "audit archive upload failed", "error", err)
		return
	}
	app.logger.Info(ctx, "audit archive uploaded", "key", key)
}

func (app *App) prune(ctx context.Context) {
	cutoff := time.Now().Add(-app.config.AuditRetention)
	n, err := app.pg.Prune(ctx, cutoff)
	if err != nil {
		app.logger.Error(ctx, "audit retention failed", "error", err)
		return
	}
	if n > 0 {
		app.logger.Info(ctx, "audit entries pruned", "deleted", n, "before", cutoff)
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	forwarderDone := make(chan struct{})
	if app.forwarder != nil {
		go func() {
			defer close(forwarderDone)
			app.forwarder.Run(ctx)
		}()
	} else {
		close(forwarderDone)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		every(ctx, app.config.SweepInterval, app.sweep)
	}()

	if app.archiver != nil && app.config.ArchiveInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			every(ctx, app.config.ArchiveInterval, app.archive)
		}()
	}

	if app.pg != nil && app.config.AuditRetention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.prune(ctx)
			every(ctx, retentionInterval, app.prune)
		}()
	}

	wg.Wait()

	app.shutdown(ctx, forwarderDone)
}

// shutdown runs after the gRPC server has stopped: pending audit entries
// reach the sinks before the gatekeeper wipes its secrets.
func (app *App) shutdown(ctx context.Context, forwarderDone <-chan struct{}) {
	if app.forwarder != nil {
		app.forwarder.Close()
	}
	<-forwarderDone
	app.closeSinks(ctx)
	app.gk.Cleanup()
	app.logger.Info(ctx, "App stopped")
}
