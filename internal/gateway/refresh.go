package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/credential"
	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/metrics"
)

// DefaultRefreshTimeout bounds a refresh exchange when no timeout is configured.
const DefaultRefreshTimeout = 10 * time.Second

// errRefreshSuperseded reports an exchange whose refresh credential was
// cleared or replaced while it ran.
var errRefreshSuperseded = errors.New("refresh credential changed during exchange")

// AccessRefresher exchanges a refresh credential with the issuer.
type AccessRefresher interface {
	RefreshAccess(ctx context.Context, refresh string) (string, error)
}

// RefreshConfig holds optional settings for the refresh protocol.
type RefreshConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Collectors
	Timeout time.Duration
}

// RefreshProtocol mints a new access credential from the stored refresh
// credential. Concurrent callers presenting the same refresh credential share
// one exchange.
type RefreshProtocol struct {
	issuer  AccessRefresher
	store   credential.Store
	logger  *slog.Logger
	metrics *metrics.Collectors
	group   singleflight.Group
	timeout time.Duration
}

// NewRefreshProtocol creates a refresh protocol over issuer and store.
func NewRefreshProtocol(issuer AccessRefresher, store credential.Store, config RefreshConfig) *RefreshProtocol {
	if config.Timeout <= 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RefreshProtocol{
		issuer:  issuer,
		store:   store,
		logger:  config.Logger.With("component", "refresh"),
		metrics: config.Metrics,
		timeout: config.Timeout,
	}
}

// Refresh returns a new access credential, or false when none could be
// obtained. A failed exchange clears both stored credentials. A caller whose
// ctx ends while waiting gets false without touching the store; the shared
// exchange keeps running until its own timeout.
func (r *RefreshProtocol) Refresh(ctx context.Context) (string, bool) {
	refresh, ok := r.store.Get(ctx, credential.Refresh)
	if !ok {
		r.metrics.ObserveRefresh(metrics.RefreshNoToken)
		r.logger.Debug("no refresh credential stored")
		return "", false
	}

	ch := r.group.DoChan(refresh, func() (interface{}, error) {
		return r.exchange(context.WithoutCancel(ctx), refresh)
	})

	select {
	case res := <-ch:
		if errors.Is(res.Err, errRefreshSuperseded) {
			r.metrics.ObserveRefresh(metrics.RefreshSuperseded)
			return "", false
		}
		if res.Err != nil {
			r.metrics.ObserveRefresh(metrics.RefreshFailed)
			return "", false
		}
		access, _ := res.Val.(string)
		r.metrics.ObserveRefresh(metrics.RefreshSuccess)
		return access, access != ""
	case <-ctx.Done():
		r.metrics.ObserveRefresh(metrics.RefreshAbandoned)
		r.logger.Debug("refresh wait abandoned", "error", ctx.Err())
		return "", false
	}
}

func (r *RefreshProtocol) exchange(ctx context.Context, refresh string) (string, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.metrics.ObserveExchange()
	start := time.Now()

	access, err := r.issuer.RefreshAccess(exchangeCtx, refresh)
	if !r.stillCurrent(ctx, refresh) {
		r.logger.Info("refresh credential changed during exchange, result dropped",
			"duration", time.Since(start),
		)
		return "", errRefreshSuperseded
	}
	if err != nil {
		r.store.Clear(ctx)
		r.logger.Warn("refresh failed, credentials cleared",
			"duration", time.Since(start),
			"error", err,
		)
		return "", err
	}

	r.store.Put(ctx, access, "")
	r.logger.Info("access credential refreshed", "duration", time.Since(start))

	return access, nil
}

// stillCurrent reports whether refresh is still the stored refresh credential.
// A logout or a new login during the exchange makes its result stale.
func (r *RefreshProtocol) stillCurrent(ctx context.Context, refresh string) bool {
	current, ok := r.store.Get(ctx, credential.Refresh)
	return ok && current == refresh
}
