package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeals/zapdeals/internal/config"
	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/store"
)

type fakeRepo struct {
	deals     []listing.Listing
	dealsErr  error
	cities    []string
	citiesErr error

	gotCity         string
	gotBusinessType listing.BusinessType
}

func (r *fakeRepo) ExistingIDs(context.Context, listing.SearchFilters) (map[string]struct{}, error) {
	return nil, nil
}

func (r *fakeRepo) ZipCodes(context.Context) ([]listing.ZipCodeComplement, error) { return nil, nil }

func (r *fakeRepo) ImageCells(context.Context) ([]listing.ImageAnalysisCell, error) {
	return nil, nil
}

func (r *fakeRepo) TrafficCells(context.Context) ([]listing.TrafficAnalysisCell, error) {
	return nil, nil
}

func (r *fakeRepo) StatsCohort(context.Context, listing.SearchFilters) ([]listing.Listing, error) {
	return nil, nil
}

func (r *fakeRepo) QuartileCohort(context.Context, listing.SearchFilters) ([]listing.Listing, error) {
	return nil, nil
}

func (r *fakeRepo) UpsertListings(context.Context, []listing.Listing) error { return nil }

func (r *fakeRepo) UpsertZipCodes(context.Context, []listing.ZipCodeComplement) error { return nil }

func (r *fakeRepo) AppendImageCells(context.Context, []listing.ImageAnalysisCell) error { return nil }

func (r *fakeRepo) AppendTrafficCells(context.Context, []listing.TrafficAnalysisCell) error {
	return nil
}

func (r *fakeRepo) PurgeStale(context.Context, listing.SearchFilters, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeRepo) Deals(_ context.Context, city string, businessType listing.BusinessType) ([]listing.Listing, error) {
	r.gotCity = city
	r.gotBusinessType = businessType
	return r.deals, r.dealsErr
}

func (r *fakeRepo) Cities(context.Context) ([]string, error) { return r.cities, r.citiesErr }

func (r *fakeRepo) CityLookup(context.Context, string, string) (store.City, error) {
	return store.City{}, store.ErrNotFound
}

func (r *fakeRepo) Close() {}

func serveRequest(repo store.Repository, cfg config.Config, req *http.Request) *httptest.ResponseRecorder {
	server := NewServer(repo, cfg, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := serveRequest(&fakeRepo{}, config.Config{}, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serveRequest(&fakeRepo{}, config.Config{}, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDealsRequiresCity(t *testing.T) {
	rec := serveRequest(&fakeRepo{}, config.Config{}, httptest.NewRequest(http.MethodGet, "/v1/deals", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDealsRejectsInvalidBusinessType(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/deals?city=São+Paulo&business_type=LEASE", nil)
	rec := serveRequest(&fakeRepo{}, config.Config{}, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDealsDefaultsToSale(t *testing.T) {
	repo := &fakeRepo{}
	req := httptest.NewRequest(http.MethodGet, "/v1/deals?city=São+Paulo", nil)
	rec := serveRequest(repo, config.Config{}, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "São Paulo", repo.gotCity)
	assert.Equal(t, listing.BusinessSale, repo.gotBusinessType)
}

func TestGetDealsLowercaseBusinessType(t *testing.T) {
	repo := &fakeRepo{}
	req := httptest.NewRequest(http.MethodGet, "/v1/deals?city=São+Paulo&business_type=rental", nil)
	rec := serveRequest(repo, config.Config{}, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, listing.BusinessRental, repo.gotBusinessType)
}

func TestGetDealsSuccess(t *testing.T) {
	repo := &fakeRepo{deals: []listing.Listing{
		{ListingID: "zap-1", PricePerArea: 8000, PricePerAreaInFirstQuartile: true},
		{ListingID: "zap-2", PricePerArea: 8500, PricePerAreaInFirstQuartile: true},
	}}
	req := httptest.NewRequest(http.MethodGet, "/v1/deals?city=São+Paulo", nil)
	rec := serveRequest(repo, config.Config{}, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Deals []listing.Listing `json:"deals"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Deals, 2)
	assert.Equal(t, "zap-1", body.Deals[0].ListingID)
}

func TestGetDealsRepositoryFailure(t *testing.T) {
	repo := &fakeRepo{dealsErr: errors.New("connection refused")}
	req := httptest.NewRequest(http.MethodGet, "/v1/deals?city=São+Paulo", nil)
	rec := serveRequest(repo, config.Config{}, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListCities(t *testing.T) {
	repo := &fakeRepo{cities: []string{"Rio de Janeiro", "São Paulo"}}
	rec := serveRequest(repo, config.Config{}, httptest.NewRequest(http.MethodGet, "/v1/cities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Cities []string `json:"cities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"Rio de Janeiro", "São Paulo"}, body.Cities)
}

func TestListCitiesEmpty(t *testing.T) {
	rec := serveRequest(&fakeRepo{}, config.Config{}, httptest.NewRequest(http.MethodGet, "/v1/cities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cities": []}`, rec.Body.String())
}

func TestAPIKeyMiddleware(t *testing.T) {
	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"

	t.Run("missing key", func(t *testing.T) {
		rec := serveRequest(&fakeRepo{}, cfg, httptest.NewRequest(http.MethodGet, "/v1/cities", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cities", nil)
		req.Header.Set("X-API-Key", "guess")
		rec := serveRequest(&fakeRepo{}, cfg, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("header key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cities", nil)
		req.Header.Set("X-API-Key", "secret")
		rec := serveRequest(&fakeRepo{}, cfg, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("query key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cities?api_key=secret", nil)
		rec := serveRequest(&fakeRepo{}, cfg, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestUnknownRouteReturns404(t *testing.T) {
	rec := serveRequest(&fakeRepo{}, config.Config{}, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
