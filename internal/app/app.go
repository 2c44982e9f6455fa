// Package app wires the sync layer together for one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/studysync/internal/config"
	"github.com/conorfennell/studysync/internal/connectivity"
	"github.com/conorfennell/studysync/internal/generation"
	"github.com/conorfennell/studysync/internal/reader"
	"github.com/conorfennell/studysync/internal/remote"
	"github.com/conorfennell/studysync/internal/session"
	"github.com/conorfennell/studysync/internal/storage"
	ssync "github.com/conorfennell/studysync/internal/sync"
)

// App owns every long-lived component. Close releases them in reverse order
// of construction.
type App struct {
	Config config.Config
	Logger *slog.Logger

	DB          *storage.DB
	Session     *session.Store
	Remote      *remote.Client
	Monitor     *connectivity.Monitor
	Scanner     *connectivity.InterfaceScanner
	Coordinator *ssync.Coordinator
	Recorder    *ssync.Recorder
	Reader      *reader.Reader
	Guard       *generation.Guard
	Generator   *generation.Generator
}

// New opens the cache, restores the session and builds the components. The
// monitor starts offline; call Probe or Watch to learn the network state.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	store, err := session.Open(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	client, err := remote.New(remote.Options{
		BaseURL:           cfg.Server.BaseURL,
		Timeout:           cfg.Server.Timeout,
		MaxRetries:        cfg.Server.MaxRetries,
		RetryInitial:      cfg.Server.RetryInitial,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		CompressAbove:     cfg.Server.CompressAbove,
		Logger:            logger.With("component", "remote"),
	}, store)
	if err != nil {
		db.Close()
		return nil, err
	}

	monitor := connectivity.New(db, store, cfg.Sync.Debounce, logger.With("component", "connectivity"))
	coordinator := ssync.NewCoordinator(db, client, monitor, store, cfg.Sync.Workers, logger.With("component", "sync"))
	guard := generation.NewGuard(client, logger.With("component", "generation"))

	a := &App{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Session:     store,
		Remote:      client,
		Monitor:     monitor,
		Scanner:     connectivity.NewInterfaceScanner(cfg.Sync.ScanInterval, logger.With("component", "scanner")),
		Coordinator: coordinator,
		Recorder:    ssync.NewRecorder(db, store, monitor, coordinator, logger.With("component", "recorder")),
		Reader:      reader.New(db, client, monitor, store, logger.With("component", "reader")),
		Guard:       guard,
		Generator:   generation.NewGenerator(client, guard),
	}
	monitor.RefreshPending(ctx)
	return a, nil
}

// Login exchanges credentials for a token, resolves the user and persists
// the pair. Nothing is saved unless both calls succeed.
func (a *App) Login(ctx context.Context, username, password string) (*remote.User, error) {
	token, err := a.Remote.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	user, err := a.Remote.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := a.Session.Save(ctx, token, user.ID); err != nil {
		return nil, err
	}
	a.Monitor.RefreshPending(ctx)
	a.Logger.Info("Logged in", "user_id", user.ID)
	return user, nil
}

// Logout drops the session, the user's cached content and the in-memory
// generation quota. Unsynced events stay on disk and are delivered after the
// same user logs in again.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Session.Clear(ctx); err != nil {
		return err
	}
	a.Guard.Reset()
	a.Monitor.RefreshPending(ctx)
	a.Logger.Info("Logged out")
	return nil
}

// Probe scans the network interfaces once and feeds the result to the
// monitor. No pass is scheduled because no syncer is running.
func (a *App) Probe(ctx context.Context) error {
	events, err := a.Scanner.Scan()
	if err != nil {
		return fmt.Errorf("failed to scan network interfaces: %w", err)
	}
	for _, ev := range events {
		a.Monitor.Observe(ctx, ev)
	}
	return nil
}

// Watch runs the connectivity monitor and the periodic sync until ctx is
// done, then waits for any in-flight pass.
func (a *App) Watch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Monitor.Run(ctx, a.Scanner, a.Coordinator)
	})
	g.Go(func() error {
		return a.Coordinator.Run(ctx, a.Config.Sync.Interval)
	})
	err := g.Wait()
	a.Coordinator.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Track polls documentID until it reaches a terminal state, reporting every
// change to observer.
func (a *App) Track(ctx context.Context, documentID int64, plan generation.Plan, observer func(generation.Status)) (generation.Status, error) {
	tracker := generation.NewTracker(a.Remote, a.Config.Generation.PollInterval, observer, a.Logger.With("component", "tracker"))
	tracker.Start(ctx, documentID, plan)
	defer tracker.Stop()
	return tracker.Wait(ctx)
}

// Close waits for background passes and closes the cache.
func (a *App) Close() error {
	a.Coordinator.Wait()
	return a.DB.Close()
}
