package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/store"
)

const dealTimeout = 5 * time.Second

// DealHandler exposes the read-only deal endpoints.
type DealHandler struct {
	repo    store.Repository
	timeout time.Duration
	logger  *zap.Logger
}

// NewDealHandler wires the repository and logger.
func NewDealHandler(repo store.Repository, logger *zap.Logger) *DealHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DealHandler{
		repo:    repo,
		timeout: dealTimeout,
		logger:  logger,
	}
}

// GetDeals handles GET /v1/deals?city=&business_type=. It returns a JSON
// object {"deals": [...], "count": n} on success, 400 for missing or invalid
// parameters, 503 when the repository is unavailable, or 500 for repository
// failures.
func (h *DealHandler) GetDeals(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	businessType := listing.BusinessSale
	if param := strings.TrimSpace(r.URL.Query().Get("business_type")); param != "" {
		businessType = listing.BusinessType(strings.ToUpper(param))
		if !businessType.Valid() {
			writeError(w, http.StatusBadRequest, "invalid business_type")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deals, err := h.repo.Deals(ctx, city, businessType)
	if err != nil {
		h.logger.Error("List deals failed", zap.String("city", city), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list deals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deals": deals,
		"count": len(deals),
	})
}

// ListCities handles GET /v1/cities. It returns {"cities": [...]}.
func (h *DealHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cities, err := h.repo.Cities(ctx)
	if err != nil {
		h.logger.Error("List cities failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cities")
		return
	}
	if cities == nil {
		cities = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cities": cities})
}
