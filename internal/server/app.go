// Package server wires the cloakvault components together and runs the HTTP
// API and the gRPC health endpoint until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cloakvault/internal/cryptox"
	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"github.com/dmitrijs2005/cloakvault/internal/server/config"
	"github.com/dmitrijs2005/cloakvault/internal/server/httpapi"
	"github.com/dmitrijs2005/cloakvault/internal/server/lockout"
	"github.com/dmitrijs2005/cloakvault/internal/server/provider"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/records"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloakvault/internal/server/services"

	gs "github.com/dmitrijs2005/cloakvault/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

// openDB is a seam for tests.
var openDB = dbx.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.New(c.LogLevel)

	db, err := openDB(ctx, c.DatabaseDSN, dbx.Options{})
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := newApp(ctx, c, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB) (*App, error) {
	var opts []repomanager.Option
	if c.RecordBackend == config.RecordBackendS3 {
		store, err := newS3RecordStore(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		opts = append(opts, repomanager.WithRecordStore(store))
	}

	rm := repomanager.NewPostgresRepositoryManager(opts...)
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	engine := lockout.NewEngine(rm.Attempts(db), rm.Locks(db), rm.Profiles(db), c.LockoutPolicy(), logger,
		lockout.WithSerializer(advisorySerializer(db, rm)))

	idp := provider.New(c.ProviderURL, c.ProviderAPIKey,
		provider.WithHTTPClient(&http.Client{Timeout: c.ProviderTimeout}))
	codec := cryptox.NewCodec(c.KDFIterations)

	deps := httpapi.Deps{
		Auth:     services.NewAuthService(db, rm, idp, engine, logger),
		Accounts: services.NewAccountService(db, rm, idp, codec, logger),
		Vault:    services.NewVaultService(db, rm, codec, logger),
		Locks:    engine,
		Health:   db,
	}

	return &App{
		config: c,
		logger: logger,
		db:     db,
		httpServer: httpapi.NewServer(c.HTTPAddr, logger, deps, httpapi.Options{
			JWTSecret:      c.JWTSecret,
			RateLimitRPS:   c.RateLimitRPS,
			RateLimitBurst: c.RateLimitBurst,
		}),
		grpcServer: gs.NewGRPCServer(c.GRPCAddr, logger, db, 0),
	}, nil
}

func newS3RecordStore(ctx context.Context, c *config.Config) (records.Repository, error) {
	client, err := records.NewS3Client(ctx, records.S3Options{
		Region:    c.S3Region,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Endpoint:  c.S3BaseEndpoint,
		Bucket:    c.S3Bucket,
	})
	if err != nil {
		return nil, err
	}
	return records.NewS3Repository(client, c.S3Bucket), nil
}

// advisorySerializer runs lock creation in a transaction holding a per-user
// advisory lock, so concurrent failures for one user create at most one lock.
func advisorySerializer(db *sql.DB, rm repomanager.RepositoryManager) lockout.Serializer {
	return func(ctx context.Context, userID string, fn func(ctx context.Context, locks lockout.LockStore) error) error {
		return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			locks := rm.Locks(tx)
			if err := locks.AcquireUserLock(ctx, userID); err != nil {
				return err
			}
			return fn(ctx, locks)
		})
	}
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

type runner interface {
	Run(ctx context.Context) error
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "server error", "server", name, "err", err)
		cancelFunc()
	}
}

// Run blocks until a signal arrives or either server fails, then closes the
// database.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.httpServer)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.grpcServer)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "err", err)
	}
	app.logger.Info(ctx, "App stopped")
}
