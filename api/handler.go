package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"quant-optimizer/internal/model"
	"quant-optimizer/internal/optimizer"
	"quant-optimizer/internal/search"
	"quant-optimizer/internal/space"
	"quant-optimizer/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Defaults applied to run requests that leave the knobs unset.
type Defaults struct {
	Concurrency     int
	TrialTimeoutSec int
	MaxCombinations int
}

type Handler struct {
	opt      *optimizer.Optimizer
	store    *store.Store
	defaults Defaults
	logger   *zap.Logger
}

func NewHandler(opt *optimizer.Optimizer, st *store.Store, defaults Defaults, logger *zap.Logger) *Handler {
	return &Handler{
		opt:      opt,
		store:    st,
		defaults: defaults,
		logger:   logger,
	}
}

// RunOptimization executes a full optimization run synchronously and
// returns the persisted record.
func (h *Handler) RunOptimization(c *gin.Context) {
	var cfg model.RunConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if cfg.Concurrency == 0 {
		cfg.Concurrency = h.defaults.Concurrency
	}
	if cfg.TrialTimeoutSec == 0 {
		cfg.TrialTimeoutSec = h.defaults.TrialTimeoutSec
	}
	if cfg.MaxCombinations == 0 {
		cfg.MaxCombinations = h.defaults.MaxCombinations
	}

	rec, err := h.opt.Run(c.Request.Context(), cfg, nil)
	if err != nil {
		var spaceErr *space.InvalidSpaceError
		var cfgErr *model.InvalidConfigError
		var noViable *search.NoViableResultError
		switch {
		case errors.As(err, &spaceErr), errors.As(err, &cfgErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &noViable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.logger.Error("optimization run failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ListRuns returns index entries, filtered and sorted per query params.
func (h *Handler) ListRuns(c *gin.Context) {
	filter := store.Filter{
		StrategyID: c.Query("strategy"),
		SearchKind: c.Query("kind"),
		SortBy:     c.Query("sort_by"),
		Ascending:  c.Query("order") == "asc",
	}

	if v := c.Query("min_sharpe"); v != "" {
		minSharpe, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_sharpe"})
			return
		}
		filter.MinSharpe = &minSharpe
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		filter.From = from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		filter.To = to
	}

	entries, err := h.store.List(filter)
	if err != nil {
		var invalid *store.InvalidArgumentError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetRun(c *gin.Context) {
	rec, err := h.store.Get(c.Param("id"))
	if err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to load run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteRun(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to delete run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// CompareRuns aligns the best metrics of 2-5 runs side by side.
func (h *Handler) CompareRuns(c *gin.Context) {
	var req struct {
		RunIDs []string `json:"run_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmp, err := h.store.Compare(req.RunIDs)
	if err != nil {
		var invalid *store.InvalidArgumentError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to compare runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) GetStatistics(c *gin.Context) {
	stats, err := h.store.Statistics()
	if err != nil {
		h.logger.Error("failed to compute statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
