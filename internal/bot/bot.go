// Package bot implements the multi-account orchestrator: it keeps one live
// monitor loop per active account, re-scans the account store on a fixed
// period, and coordinates graceful shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rmarques/fanvuebot/internal/database"
	"github.com/rmarques/fanvuebot/internal/state"
)

// Runner is a monitor loop as seen by the orchestrator. Run must return
// when its context is cancelled or when the loop disables itself.
type Runner interface {
	Run(ctx context.Context)
}

// MonitorFactory builds the monitor loop for one account, binding the
// account's credentials to a fresh platform client.
type MonitorFactory func(account database.Account) Runner

// Orchestrator maintains one running monitor per active account.
type Orchestrator struct {
	logger          *slog.Logger
	accounts        database.AccountStore
	state           *state.Store
	newMonitor      MonitorFactory
	refreshInterval time.Duration

	mu       sync.Mutex
	monitors map[string]*runningMonitor
	wg       sync.WaitGroup
}

// runningMonitor tracks one monitor goroutine. done is closed when the
// loop returns, which also covers loops that disabled themselves (e.g.
// after an authentication failure) so a later refresh can restart them.
type runningMonitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the orchestrator.
func New(
	logger *slog.Logger,
	accounts database.AccountStore,
	st *state.Store,
	newMonitor MonitorFactory,
	refreshInterval time.Duration,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger:          logger.With("component", "orchestrator"),
		accounts:        accounts,
		state:           st,
		newMonitor:      newMonitor,
		refreshInterval: refreshInterval,
		monitors:        make(map[string]*runningMonitor),
	}
}

// Run starts monitors for all currently active accounts and blocks until
// ctx is cancelled. A failure to load the account list on startup is fatal;
// refresh failures later on are logged and the current monitor set is kept.
// On shutdown all loops are asked to stop after their current iteration and
// the state store is flushed before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	accounts, err := o.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("initial account load failed: %w", err)
	}
	if len(accounts) == 0 {
		o.logger.Warn("No active accounts found, waiting for refresh to discover some")
	}
	o.reconcile(ctx, accounts)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(o.refreshInterval),
		gocron.NewTask(o.refresh, ctx),
		gocron.WithName("account_refresh"),
	); err != nil {
		return fmt.Errorf("failed to schedule account refresh: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start()
		o.logger.Info("Account refresh scheduled", "interval", o.refreshInterval)

		<-gCtx.Done()
		o.logger.Info("Shutdown signal received, stopping account refresh scheduler...")
		if err := scheduler.Shutdown(); err != nil {
			o.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	runErr := g.Wait()

	o.logger.Info("Stopping all monitors...")
	o.stopAll()
	o.wg.Wait()

	if err := o.state.Flush(); err != nil {
		o.logger.Error("Failed to flush state on shutdown", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	o.logger.Info("Orchestrator stopped gracefully.")
	return nil
}

// refresh re-queries the account store and reconciles the monitor set.
func (o *Orchestrator) refresh(ctx context.Context) {
	o.logger.Debug("Refreshing account list")

	accounts, err := o.accounts.ListActiveAccounts(ctx)
	if err != nil {
		o.logger.Error("Account refresh failed, keeping current monitors", "error", err)
		return
	}
	o.reconcile(ctx, accounts)
}

// reconcile starts monitors for newly discovered accounts and cancels
// monitors whose accounts were removed or expired. Cancelled loops finish
// their current iteration; nothing is aborted mid-flight.
func (o *Orchestrator) reconcile(ctx context.Context, accounts []database.Account) {
	o.mu.Lock()
	defer o.mu.Unlock()

	active := make(map[string]bool, len(accounts))
	for _, account := range accounts {
		active[account.ID] = true

		if rm, ok := o.monitors[account.ID]; ok {
			select {
			case <-rm.done:
				// The loop exited on its own (credentials were rejected);
				// the refreshed account row may carry a new key, start over.
				delete(o.monitors, account.ID)
			default:
				continue
			}
		}

		o.startLocked(ctx, account)
	}

	for id, rm := range o.monitors {
		if active[id] {
			continue
		}
		o.logger.Info("Account removed or expired, stopping monitor", "account_id", id)
		rm.cancel()
		delete(o.monitors, id)
	}
}

// startLocked launches the monitor goroutine for one account. Callers must
// hold o.mu.
func (o *Orchestrator) startLocked(ctx context.Context, account database.Account) {
	mctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.monitors[account.ID] = &runningMonitor{cancel: cancel, done: done}

	runner := o.newMonitor(account)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(done)
		defer cancel()
		runner.Run(mctx)
	}()

	o.logger.Info("Started monitor", "account_id", account.ID)
}

// stopAll requests every monitor loop to stop after its current iteration.
func (o *Orchestrator) stopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, rm := range o.monitors {
		rm.cancel()
	}
	o.monitors = make(map[string]*runningMonitor)
}

// MonitorCount reports how many monitor loops are currently registered.
func (o *Orchestrator) MonitorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.monitors)
}
