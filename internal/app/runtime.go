package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pixelpet/internal/analyzer"
	"pixelpet/internal/config"
	"pixelpet/internal/decay"
	"pixelpet/internal/game"
	"pixelpet/internal/githubapi"
	"pixelpet/internal/health"
	"pixelpet/internal/metrics"
	"pixelpet/internal/statestore"
	syncpkg "pixelpet/internal/sync"
)

// Runtime wires the engine together: state store, game owner, GitHub
// analysis, the sync and decay loops, and the HTTP surface.
type Runtime struct {
	cfg    *config.Config
	logger *zap.Logger

	store        statestore.Store
	owner        *game.Owner
	source       *clientSource
	orchestrator *syncpkg.Orchestrator
	scheduler    *syncpkg.Scheduler
	decayTicker  *decay.Ticker
	metrics      *metrics.Set
	evaluator    *health.StatusEvaluator

	githubHealthy    atomic.Bool
	schedulerRunning atomic.Bool
	decayRunning     atomic.Bool
}

// NewRuntime builds a Runtime from configuration. The GitHub identity is
// fetched once at startup; failure there degrades health but does not stop
// the process.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := newStateStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	owner, err := game.NewOwner(ctx, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init game state: %w", err)
	}

	client, err := newGitHubClient(cfg, owner.Token())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	source := newClientSource(client)

	commitAnalyzer := analyzer.New(source, analyzer.Config{
		LookbackDays:   cfg.Sync.LookbackDays,
		MaxBranches:    cfg.Sync.MaxBranches,
		PagesPerBranch: cfg.Sync.PagesPerBranch,
		CommitsPerPage: cfg.Sync.CommitsPerPage,
		DetailLimit:    cfg.Sync.DetailLimit,
	}, logger)

	runtime := &Runtime{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		owner:        owner,
		source:       source,
		orchestrator: syncpkg.NewOrchestrator(owner, commitAnalyzer, logger),
		evaluator:    health.NewStatusEvaluator(),
	}
	runtime.metrics = metrics.NewSet(owner)
	runtime.scheduler = syncpkg.NewScheduler(runtime.orchestrator, cfg.Sync.Interval, logger)
	runtime.scheduler.OnSummary = runtime.recordSummary
	runtime.decayTicker = decay.NewTicker(owner, cfg.Decay.Interval, logger)
	runtime.decayTicker.OnTick = func() {
		runtime.metrics.DecayTicks.Inc()
	}

	runtime.refreshIdentity(ctx, source)
	return runtime, nil
}

// Login verifies a bearer token against the GitHub API and, on success,
// makes it the active credential, stores it with the identity in the state
// document and reuses it on the next start.
func (r *Runtime) Login(ctx context.Context, token string) (game.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return game.Identity{}, errors.New("token is required")
	}

	client, err := githubapi.NewClient(githubapi.ClientConfig{
		Token:      token,
		APIBaseURL: r.cfg.GitHub.APIBaseURL,
		HTTPClient: &http.Client{Timeout: r.cfg.GitHub.RequestTimeout},
	})
	if err != nil {
		return game.Identity{}, fmt.Errorf("init github client: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.requestTimeout())
	defer cancel()
	profile, err := client.AuthenticatedUser(fetchCtx)
	if err != nil {
		return game.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	r.source.Swap(client)
	r.githubHealthy.Store(true)
	identity := game.Identity{
		Login:     profile.Login,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
	}
	r.owner.SetCredentials(ctx, identity, token)
	r.logger.Info("authenticated", zap.String("login", profile.Login))
	return identity, nil
}

func (r *Runtime) requestTimeout() time.Duration {
	if r.cfg.GitHub.RequestTimeout > 0 {
		return r.cfg.GitHub.RequestTimeout
	}
	return 30 * time.Second
}

func (r *Runtime) refreshIdentity(ctx context.Context, client identitySource) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.requestTimeout())
	defer cancel()

	profile, err := client.AuthenticatedUser(fetchCtx)
	if err != nil {
		r.githubHealthy.Store(false)
		r.logger.Warn("fetch authenticated user failed", zap.Error(err))
		return
	}
	r.githubHealthy.Store(true)
	r.owner.SetIdentity(ctx, game.Identity{
		Login:     profile.Login,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
	})
	r.logger.Info("authenticated", zap.String("login", profile.Login))
}

type identitySource interface {
	AuthenticatedUser(ctx context.Context) (githubapi.UserProfile, error)
}

// Start launches the background loops.
func (r *Runtime) Start(ctx context.Context) {
	r.scheduler.Start(ctx)
	r.schedulerRunning.Store(true)
	r.decayTicker.Start(ctx)
	r.decayRunning.Store(true)
}

// Stop halts the loops and releases the store.
func (r *Runtime) Stop() {
	r.scheduler.Stop()
	r.schedulerRunning.Store(false)
	r.decayTicker.Stop()
	r.decayRunning.Store(false)
	if err := r.store.Close(); err != nil {
		r.logger.Warn("close state store", zap.Error(err))
	}
}

// recordSummary folds one sync result into metrics and GitHub health.
func (r *Runtime) recordSummary(summary syncpkg.Summary, err error) {
	outcome := summary.Outcome
	if outcome == "" {
		outcome = syncpkg.OutcomeFailed
	}
	r.metrics.SyncRuns.WithLabelValues(outcome).Inc()
	r.metrics.CommitsCredited.Add(float64(summary.NewCommits))
	r.metrics.XPCredited.Add(float64(summary.XPAwarded))

	if err != nil && analyzer.IsRemoteFailure(err) {
		r.githubHealthy.Store(false)
		return
	}
	if err == nil {
		r.githubHealthy.Store(true)
	}
}

// CurrentStatus implements health.Provider.
func (r *Runtime) CurrentStatus(ctx context.Context) health.Status {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _, loadErr := r.store.Load(probeCtx)

	return r.evaluator.Evaluate(health.Input{
		StoreHealthy:     loadErr == nil,
		SchedulerHealthy: r.schedulerRunning.Load(),
		DecayHealthy:     r.decayRunning.Load(),
		GitHubHealthy:    r.githubHealthy.Load(),
	})
}

// Handler returns the full HTTP surface.
func (r *Runtime) Handler() http.Handler {
	return newRouter(r)
}
