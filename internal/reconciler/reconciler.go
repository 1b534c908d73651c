package reconciler

import (
	"context"
	"time"

	"github.com/weiawesome/wes-market/internal/repository"
	"github.com/weiawesome/wes-market/internal/store"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
)

// Config controls the reconciliation cycle.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	TopN     int           `mapstructure:"top_n"`
}

// Reconciler periodically rewrites the cached follower counts of the most
// requested users from the database, correcting any drift left by missed
// follow events.
type Reconciler struct {
	store  store.FollowStore
	repo   repository.FollowRepository
	cfg    Config
	quit   chan struct{}
	doneCh chan struct{}
}

// New creates a new Reconciler.
func New(store store.FollowStore, repo repository.FollowRepository, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 100
	}
	return &Reconciler{
		store:  store,
		repo:   repo,
		cfg:    cfg,
		quit:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the reconciler in a background goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the reconciler to stop and returns immediately.
// Call Done() to wait for it to exit.
func (r *Reconciler) Stop() {
	close(r.quit)
}

// Done returns a channel that is closed when the reconciler has fully stopped.
func (r *Reconciler) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile returns the number of counters rewritten.
func (r *Reconciler) reconcile(ctx context.Context) int {
	l := pkglog.L()

	userIDs, err := r.store.GetTopHotKeys(ctx, int64(r.cfg.TopN))
	if err != nil {
		l.Error().Err(err).Msg("reconciler: failed to get top hot keys")
		return 0
	}
	if len(userIDs) == 0 {
		l.Debug().Msg("reconciler: no hot keys to reconcile")
		return 0
	}

	synced := 0
	for _, userID := range userIDs {
		count, err := r.repo.GetFollowersCount(ctx, userID)
		if err != nil {
			l.Error().Err(err).Str(pkglog.FieldUserID, userID).Msg("reconciler: failed to get followers count from db")
			continue
		}
		if err := r.store.SetFollowersCount(ctx, userID, count); err != nil {
			l.Error().Err(err).Str(pkglog.FieldUserID, userID).Msg("reconciler: failed to set followers count in redis")
			continue
		}
		synced++
	}

	// Scores restart every cycle so the top list follows current traffic.
	if err := r.store.ResetHotKeyScores(ctx); err != nil {
		l.Error().Err(err).Msg("reconciler: failed to reset hot key scores")
	}

	l.Info().Int("hot_keys", len(userIDs)).Int("synced", synced).Msg("reconciler: hot-key reconciliation complete")
	return synced
}
