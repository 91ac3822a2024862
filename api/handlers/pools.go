package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pgflex/pgflex/internal/decision"
	"github.com/pgflex/pgflex/pkg/database/queries"
	"github.com/pgflex/pgflex/pkg/models"
)

// PoolDirectory is the slice of the controller the API reads from. Pools are
// declared in configuration; the API only observes them.
type PoolDirectory interface {
	ListPools() []*models.PoolState
	PoolState(poolID string) (*models.PoolState, error)
	PoolUnits(poolID string) ([]*models.ComputeUnit, error)
	PoolAggregate(poolID string) (*models.LoadAggregate, error)
	SubscribeAllEvents() <-chan *models.Event
}

type PoolHandler struct {
	directory    PoolDirectory
	engine       *decision.Engine
	decisionRepo *queries.DecisionRepository
	eventsRepo   *queries.ScaleEventRepository
}

func NewPoolHandler(
	directory PoolDirectory,
	engine *decision.Engine,
	decisionRepo *queries.DecisionRepository,
	eventsRepo *queries.ScaleEventRepository,
) *PoolHandler {
	return &PoolHandler{
		directory:    directory,
		engine:       engine,
		decisionRepo: decisionRepo,
		eventsRepo:   eventsRepo,
	}
}

// List godoc
// @Summary List pools
// @Description Get the state of every managed compute pool
// @Tags Pools
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of pool states"
// @Router /pools [get]
func (h *PoolHandler) List(c *gin.Context) {
	pools := h.directory.ListPools()

	c.JSON(http.StatusOK, gin.H{
		"pools": pools,
		"count": len(pools),
	})
}

// GetStatus godoc
// @Summary Get pool status
// @Description Get tier, unit counts, load aggregate and hysteresis state for one pool
// @Tags Pools
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pool ID"
// @Success 200 {object} map[string]interface{} "Pool status"
// @Failure 404 {object} map[string]string "Pool not found"
// @Router /pools/{id}/status [get]
func (h *PoolHandler) GetStatus(c *gin.Context) {
	id := c.Param("id")

	state, err := h.directory.PoolState(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pool not found"})
		return
	}

	status := gin.H{
		"pool_id": state.PoolID,
		"tier":    state.Tier,
		"units": gin.H{
			"total":        state.TotalUnits,
			"active":       state.ActiveUnits,
			"provisioning": state.ProvisioningUnits,
			"draining":     state.DrainingUnits,
		},
		"routed_conns":         state.RoutedConns,
		"scale_up_in_flight":   state.ScaleUpInFlight,
		"scale_down_in_flight": state.ScaleDownInFlight,
		"last_scale_time":      state.LastScaleTime,
	}

	if agg, err := h.directory.PoolAggregate(id); err == nil {
		status["load"] = agg
	}

	if h.engine != nil {
		high, low := h.engine.Streaks(id)
		status["streaks"] = gin.H{"high": high, "low": low}
		status["cooldown_remaining_ms"] = h.engine.CooldownRemaining(id).Milliseconds()
	}

	c.JSON(http.StatusOK, status)
}

// GetUnits godoc
// @Summary List pool units
// @Description Get every compute unit the pool has launched, including terminated ones
// @Tags Pools
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pool ID"
// @Success 200 {object} map[string]interface{} "List of compute units"
// @Failure 404 {object} map[string]string "Pool not found"
// @Router /pools/{id}/units [get]
func (h *PoolHandler) GetUnits(c *gin.Context) {
	id := c.Param("id")

	units, err := h.directory.PoolUnits(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pool not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool_id": id,
		"units":   units,
		"count":   len(units),
	})
}

// GetDecisions godoc
// @Summary Get pool decision log
// @Description Get recent scaling decisions for one pool
// @Tags Decisions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pool ID"
// @Param limit query int false "Max rows" default(50)
// @Success 200 {object} map[string]interface{} "Decision log"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /pools/{id}/decisions [get]
func (h *PoolHandler) GetDecisions(c *gin.Context) {
	if h.decisionRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log not enabled"})
		return
	}

	id := c.Param("id")
	limit := queryInt(c, "limit", 50)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	decisions, err := h.decisionRepo.GetByPool(ctx, id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch decisions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool_id":   id,
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// GetRecentDecisions godoc
// @Summary Get recent decisions
// @Description Get the most recent scaling decisions across all pools
// @Tags Decisions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows" default(20)
// @Success 200 {object} map[string]interface{} "Decision log"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /decisions/recent [get]
func (h *PoolHandler) GetRecentDecisions(c *gin.Context) {
	if h.decisionRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log not enabled"})
		return
	}

	limit := queryInt(c, "limit", 20)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	decisions, err := h.decisionRepo.GetRecent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch decisions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// GetScaleEvents godoc
// @Summary Get pool scale events
// @Description Get executed scale operations for one pool within a time range
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pool ID"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Param limit query int false "Max rows" default(50)
// @Success 200 {object} map[string]interface{} "Scale events"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /pools/{id}/events [get]
func (h *PoolHandler) GetScaleEvents(c *gin.Context) {
	if h.eventsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scale event history not enabled"})
		return
	}

	id := c.Param("id")
	limit := queryInt(c, "limit", 50)
	from, to := queryTimeRange(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	events, err := h.eventsRepo.GetByPool(ctx, id, from, to, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch scale events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool_id": id,
		"events":  events,
		"count":   len(events),
	})
}

// GetScaleStats godoc
// @Summary Get pool scaling statistics
// @Description Get scale-up/down and outcome counts for one pool within a time range
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pool ID"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} queries.ScaleStats "Scaling statistics"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /pools/{id}/events/stats [get]
func (h *PoolHandler) GetScaleStats(c *gin.Context) {
	if h.eventsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scale event history not enabled"})
		return
	}

	id := c.Param("id")
	from, to := queryTimeRange(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.eventsRepo.GetStats(ctx, id, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch scaling stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetRecentScaleEvents godoc
// @Summary Get recent scale events
// @Description Get the most recent scale operations across all pools
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows" default(20)
// @Success 200 {object} map[string]interface{} "Scale events"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /events/recent [get]
func (h *PoolHandler) GetRecentScaleEvents(c *gin.Context) {
	if h.eventsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scale event history not enabled"})
		return
	}

	limit := queryInt(c, "limit", 20)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	events, err := h.eventsRepo.GetRecent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch scale events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryTimeRange(c *gin.Context) (time.Time, time.Time) {
	from := time.Now().Add(-24 * time.Hour)
	to := time.Now()

	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			from = t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			to = t
		}
	}

	return from, to
}
