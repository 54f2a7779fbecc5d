// Package server wires the voice MFA server together: storage, the
// biometric gate and its model clients, rate limiting, services, the
// janitor and the gRPC transport. It owns graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/cryptox"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/auth"
	"github.com/dmitrijs2005/voicemfa/internal/server/biometric"
	"github.com/dmitrijs2005/voicemfa/internal/server/capability"
	"github.com/dmitrijs2005/voicemfa/internal/server/config"
	"github.com/dmitrijs2005/voicemfa/internal/server/credentials"
	"github.com/dmitrijs2005/voicemfa/internal/server/ratelimit"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/memory"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/voicemfa/internal/server/services"
	"github.com/dmitrijs2005/voicemfa/internal/server/staging"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/voicemfa/internal/server/grpc"
)

// MemoryDSN selects the in-process store.
const MemoryDSN = "memory"

type App struct {
	config  *config.Config
	logger  logging.Logger
	grpc    *gs.GRPCServer
	janitor *services.Janitor
	closers []func() error
}

// Storage is a transactor with the repositories bound to it.
type Storage struct {
	Tx    dbx.Transactor
	Repos repomanager.RepositoryManager
	Close func() error
}

// OpenStorage opens Postgres and applies migrations, or returns the memory
// store for MemoryDSN.
func OpenStorage(ctx context.Context, dsn string) (*Storage, error) {
	if dsn == MemoryDSN {
		s := memory.New()
		return &Storage{Tx: s, Repos: s, Close: func() error { return nil }}, nil
	}

	db, err := repomanager.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &Storage{Tx: dbx.NewSQLTransactor(db, nil), Repos: rm, Close: db.Close}, nil
}

// newStager picks S3 when a bucket is configured, the local directory
// otherwise.
func newStager(ctx context.Context, c *config.Config) (staging.Stager, error) {
	if c.S3Bucket != "" {
		return staging.NewS3(ctx, staging.S3Options{
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
		})
	}
	return staging.NewLocal(c.StagingDir)
}

// newLimiter shares counters through Redis when an address is configured.
// A Redis window admits the per-minute rate plus the burst. The in-process
// limiter is also returned as the janitor's sweeper.
func newLimiter(ctx context.Context, c *config.Config) (ratelimit.Limiter, services.Sweeper, func() error, error) {
	if c.RedisAddr == "" {
		l := ratelimit.NewLocal(c.RateLimitPerMinute, c.RateLimitBurst)
		return l, l, func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	return ratelimit.NewRedis(client, c.RateLimitPerMinute+c.RateLimitBurst, time.Minute), nil, client.Close, nil
}

func gatePolicy(c *config.Config) biometric.Policy {
	p := biometric.DefaultPolicy()
	p.Threshold = c.SimilarityThreshold
	p.SilenceEpsilon = c.SilenceEpsilon
	p.ClippingRatio = c.ClippingRatio
	p.TargetSampleRate = c.TargetSampleRate
	p.TargetPeakDBFS = c.TargetPeakDBFS
	p.MaxAudioBytes = c.MaxAudioBytes
	return p
}

// NewApp validates c and builds every component. Whatever was opened is
// closed again when construction fails.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (_ *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	store, err := OpenStorage(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, store.Close)

	vault, err := cryptox.NewVaultFromHex(c.VaultKeyHex)
	if err != nil {
		return nil, err
	}
	creds, err := credentials.NewStore(c.PINCost)
	if err != nil {
		return nil, err
	}
	issuer, err := auth.NewIssuer([]byte(c.SecretKey), c.SessionTTL)
	if err != nil {
		return nil, err
	}

	stager, err := newStager(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	capClient, err := capability.NewClient(capability.Endpoints{
		Enhance:    c.EnhanceURL,
		Spoof:      c.SpoofURL,
		Embed:      c.EmbedURL,
		Transcribe: c.TranscribeURL,
	}, stager, c.CapabilityTimeout, logger)
	if err != nil {
		return nil, err
	}
	gate, err := biometric.NewGate(capClient.Capabilities(), vault, gatePolicy(c), logger)
	if err != nil {
		return nil, err
	}

	limiter, sweeper, closeLimiter, err := newLimiter(ctx, c)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeLimiter)

	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	ledger := services.NewChallengeLedger(store.Tx, store.Repos, services.ChallengePolicy{
		TTL:           c.ChallengeTTL,
		Strict:        c.PhraseMatchStrict,
		AllowedMisses: c.PhraseAllowedMisses,
	}, logger)
	guard := services.NewLockoutGuard(store.Repos, c.MaxFailedAttempts, c.LockoutDuration, logger)
	attendance := services.NewAttendanceEngine(store.Tx, store.Repos, gate, services.ShiftPolicy{
		EndHour:     c.ShiftEndHour,
		Location:    loc,
		FinePerHour: c.FinePerHour,
	}, logger)
	authService := services.NewAuthService(services.AuthDeps{
		Tx:         store.Tx,
		Repos:      store.Repos,
		Creds:      creds,
		Guard:      guard,
		Ledger:     ledger,
		Gate:       gate,
		Issuer:     issuer,
		Attendance: attendance,
		Limiter:    limiter,
		Logger:     logger,
	})
	enrollment := services.NewEnrollmentService(store.Tx, store.Repos, creds, gate, vault, limiter, c.EnrollmentTTL, logger)
	tasks := services.NewTaskService(store.Tx, store.Repos, logger)

	app.janitor = services.NewJanitor(ledger, enrollment, sweeper, c.JanitorInterval, logger)
	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Services{
		Auth:       authService,
		Enrollment: enrollment,
		Attendance: attendance,
		Tasks:      tasks,
	}, c.MaxAudioBytes)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until a signal arrives or ctx is done, then stops the janitor
// and the server and releases storage.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.janitor.Run(ctx)
	}()

	wg.Wait()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}
