// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/access-control/internal/access"
	"github.com/carterperez-dev/templates/access-control/internal/core"
	"github.com/carterperez-dev/templates/access-control/internal/middleware"
	"github.com/carterperez-dev/templates/access-control/internal/usage"
)

type Handler struct {
	engine     *access.Engine
	store      access.CounterStore
	tiers      middleware.TierResolver
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	dbPing     func(ctx context.Context) error
	redisPing  func(ctx context.Context) error
	logger     *slog.Logger
}

// HandlerConfig wires the operator API. The stats and ping funcs are
// optional; Redis ones are nil when Redis is not configured.
type HandlerConfig struct {
	Engine     *access.Engine
	Store      access.CounterStore
	Tiers      middleware.TierResolver
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	DBPing     func(ctx context.Context) error
	RedisPing  func(ctx context.Context) error
	Logger     *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:     cfg.Engine,
		store:      cfg.Store,
		tiers:      cfg.Tiers,
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		dbPing:     cfg.DBPing,
		redisPing:  cfg.RedisPing,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/runtime", h.GetRuntimeStats)

		r.Get("/usage/{userID}", h.GetUserUsage)
		r.Delete("/usage/{userID}/{feature}/{action}", h.ResetUsage)
		r.Post("/usage/purge", h.PurgeUsage)
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: ping(ctx, h.dbPing),
			Stats:   h.getDBStats(),
		},
		UsageStore: StoreStatus{
			Healthy: h.store != nil && h.store.Ping(ctx) == nil,
		},
		Runtime: readRuntimeStats(),
	}

	if h.redisPing != nil {
		response.Redis = &RedisStatus{
			Healthy: ping(ctx, h.redisPing),
			Stats:   h.getRedisStats(),
		}
	}

	core.OK(w, response)
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, readRuntimeStats())
}

// GetUserUsage reports a user's quota meters. The tier comes from the
// query string, falling back to the user's active subscription.
func (h *Handler) GetUserUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	tier, ok := h.resolveTier(w, r, userID)
	if !ok {
		return
	}

	meters, err := h.engine.UsageSnapshot(r.Context(), tier, userID)
	if err != nil {
		core.JSONError(w, core.UnavailableError("usage data is unavailable"))
		return
	}
	if meters == nil {
		meters = []access.UsageMeter{}
	}

	core.OK(w, UserUsageResponse{UserID: userID, Tier: tier, Meters: meters})
}

func (h *Handler) resolveTier(w http.ResponseWriter, r *http.Request, userID string) (access.Tier, bool) {
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, err := access.ParseTier(raw)
		if err != nil {
			core.BadRequest(w, err.Error())
			return "", false
		}
		return tier, true
	}

	if h.tiers == nil {
		core.BadRequest(w, "tier is required")
		return "", false
	}

	tier, ok, err := h.tiers.GetUserTier(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, err)
		return "", false
	}
	if !ok {
		core.NotFound(w, "active subscription")
		return "", false
	}
	return tier, true
}

// ResetUsage clears the current bucket of one counter. Without a window
// query param the counter's own tracking window is used.
func (h *Handler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	feature, err := access.ParseFeature(chi.URLParam(r, "feature"))
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	action, err := access.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	var window access.TimeRestriction
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err = access.ParseTimeRestriction(raw)
		if err != nil {
			core.BadRequest(w, err.Error())
			return
		}
	} else {
		shape, found := h.engine.Checker().GetFeaturePermission(access.TierBasic, feature, action)
		if !found || !shape.HasQuota() {
			core.BadRequest(w, "feature action is not usage tracked; pass window explicitly")
			return
		}
		window = shape.TimeRestriction
	}

	if err := h.engine.ResetUsage(r.Context(), userID, feature, action, window); err != nil {
		core.JSONError(w, core.UnavailableError("usage store is unavailable"))
		return
	}

	h.logger.Info("usage reset by operator",
		"operator_id", middleware.GetUserID(r.Context()),
		"user_id", userID,
		"feature", feature,
		"action", action,
	)

	core.NoContent(w)
}

func (h *Handler) PurgeUsage(w http.ResponseWriter, r *http.Request) {
	removed, err := usage.Purge(r.Context(), h.store)
	if errors.Is(err, usage.ErrPurgeUnsupported) {
		core.JSONError(w, core.NewAppError(
			err,
			"the configured usage store expires counters itself",
			http.StatusNotImplemented,
			"NOT_IMPLEMENTED",
		))
		return
	}
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, PurgeResponse{Removed: removed})
}

func ping(ctx context.Context, fn func(context.Context) error) bool {
	return fn != nil && fn(ctx) == nil
}

func readRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}
