package crawl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeals/zapdeals/internal/cleaning"
	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/publisher/memory"
	"github.com/zapdeals/zapdeals/internal/store"
	"github.com/zapdeals/zapdeals/internal/zapapi"
)

var crawlNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	pages   map[string][][]zapapi.Listing
	err     error
	failFor string
	calls   int
}

func (f *stubFetcher) FetchPage(_ context.Context, filters listing.SearchFilters, page int) (zapapi.RawPage, error) {
	f.calls++
	if f.err != nil {
		return zapapi.RawPage{}, f.err
	}
	if f.failFor != "" && filters.Neighborhood == f.failFor {
		return zapapi.RawPage{}, errors.New("portal down")
	}
	var p zapapi.Page
	if pages, ok := f.pages[filters.Neighborhood]; ok && page < len(pages) {
		p.Search.Result.Listings = pages[page]
	}
	return zapapi.RawPage{Page: p, Body: []byte(fmt.Sprintf(`{"page": %d}`, page))}, nil
}

type stubDistricts struct {
	names []string
	err   error
	calls int
}

func (d *stubDistricts) Districts(_ context.Context, _ int) ([]string, error) {
	d.calls++
	return d.names, d.err
}

type stubArchive struct {
	objects []string
	err     error
}

func (a *stubArchive) Save(_ context.Context, objectName string, _ []byte) error {
	if a.err != nil {
		return a.err
	}
	a.objects = append(a.objects, objectName)
	return nil
}

type fakeRepo struct {
	purged      int64
	purgeErr    error
	purgeCutoff time.Time

	existing       map[string]struct{}
	existingErr    error
	zips           []listing.ZipCodeComplement
	statsCohort    []listing.Listing
	quartileCohort []listing.Listing
	statsErr       error

	upserted  []listing.Listing
	upsertErr error

	city    store.City
	cityErr error

	lookups int
}

func (r *fakeRepo) ExistingIDs(context.Context, listing.SearchFilters) (map[string]struct{}, error) {
	return r.existing, r.existingErr
}

func (r *fakeRepo) ZipCodes(context.Context) ([]listing.ZipCodeComplement, error) {
	return r.zips, nil
}

func (r *fakeRepo) ImageCells(context.Context) ([]listing.ImageAnalysisCell, error) {
	return nil, nil
}

func (r *fakeRepo) TrafficCells(context.Context) ([]listing.TrafficAnalysisCell, error) {
	return nil, nil
}

func (r *fakeRepo) StatsCohort(context.Context, listing.SearchFilters) ([]listing.Listing, error) {
	return r.statsCohort, r.statsErr
}

func (r *fakeRepo) QuartileCohort(context.Context, listing.SearchFilters) ([]listing.Listing, error) {
	return r.quartileCohort, nil
}

func (r *fakeRepo) UpsertListings(_ context.Context, listings []listing.Listing) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserted = append(r.upserted, listings...)
	return nil
}

func (r *fakeRepo) UpsertZipCodes(context.Context, []listing.ZipCodeComplement) error { return nil }

func (r *fakeRepo) AppendImageCells(context.Context, []listing.ImageAnalysisCell) error { return nil }

func (r *fakeRepo) AppendTrafficCells(context.Context, []listing.TrafficAnalysisCell) error {
	return nil
}

func (r *fakeRepo) PurgeStale(_ context.Context, _ listing.SearchFilters, cutoff time.Time) (int64, error) {
	r.purgeCutoff = cutoff
	return r.purged, r.purgeErr
}

func (r *fakeRepo) Deals(context.Context, string, listing.BusinessType) ([]listing.Listing, error) {
	return nil, nil
}

func (r *fakeRepo) Cities(context.Context) ([]string, error) { return nil, nil }

func (r *fakeRepo) CityLookup(context.Context, string, string) (store.City, error) {
	r.lookups++
	return r.city, r.cityErr
}

func (r *fakeRepo) Close() {}

func crawlFilters(neighborhood string) listing.SearchFilters {
	return listing.SearchFilters{
		State:        "SP",
		City:         "São Paulo",
		Neighborhood: neighborhood,
		UnitType:     "APARTMENT",
		UsageType:    "RESIDENTIAL",
		BusinessType: listing.BusinessSale,
	}
}

// rawItem builds a valid raw listing. Street numbers are unique per index so
// deduplication never collapses two generated items.
func rawItem(i, price int) zapapi.Listing {
	var r zapapi.Listing
	r.Listing.SourceID = fmt.Sprintf("zap-%04d", i)
	r.Listing.Title = "Apartamento"
	r.Listing.CreatedAt = "2026-03-01T00:00:00Z"
	r.Listing.UpdatedAt = "2026-03-09T00:00:00Z"
	r.Listing.UnitTypes = []string{"APARTMENT"}
	r.Listing.UsableAreas = zapapi.FlexIntList{70}
	r.Listing.Bedrooms = zapapi.FlexIntList{2}
	r.Listing.Bathrooms = zapapi.FlexIntList{1}
	r.Listing.ParkingSpaces = zapapi.FlexIntList{1}
	r.Listing.Address = zapapi.Address{
		City:         "São Paulo",
		StateAcronym: "SP",
		Neighborhood: "Pinheiros",
		ZipCode:      "05422010",
	}
	r.Listing.PricingInfos = []zapapi.PricingInfo{{
		BusinessType: "SALE",
		Price:        zapapi.FlexInt(price),
	}}
	r.Account.Name = "Honest Realty"
	r.Account.LicenseNumber = "CRECI-12345"
	r.Account.CreatedDate = "2020-01-01T00:00:00Z"
	r.Link.Href = "/imovel/" + r.Listing.SourceID
	r.Link.Data.Street = "Rua dos Pinheiros"
	r.Link.Data.StreetNumber = strconv.Itoa(100 + i)
	return r
}

func newTestController(t *testing.T, p Params) *Controller {
	t.Helper()
	if p.Pipeline == nil {
		pipeline, err := cleaning.NewPipeline(cleaning.DefaultConfig(), nil)
		require.NoError(t, err)
		p.Pipeline = pipeline
	}
	if p.Now == nil {
		p.Now = func() time.Time { return crawlNow }
	}
	if p.Seed == 0 {
		p.Seed = 1
	}
	controller, err := New(p)
	require.NoError(t, err)
	return controller
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	pipeline, err := cleaning.NewPipeline(cleaning.DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = New(Params{Repo: &fakeRepo{}, Pipeline: pipeline})
	require.Error(t, err)

	_, err = New(Params{Fetcher: &stubFetcher{}, Pipeline: pipeline})
	require.Error(t, err)

	_, err = New(Params{Fetcher: &stubFetcher{}, Repo: &fakeRepo{}})
	require.Error(t, err)
}

func TestCrawlNeighborhoodEndToEnd(t *testing.T) {
	// 237 listings across three pages: two full pages and a 37-item tail.
	pages := make([][]zapapi.Listing, 3)
	idx := 0
	for p, size := range []int{100, 100, 37} {
		pages[p] = make([]zapapi.Listing, 0, size)
		for n := 0; n < size; n++ {
			pages[p] = append(pages[p], rawItem(idx, 700000+idx))
			idx++
		}
	}
	// One deny-listed advertizer and one suspiciously cheap listing. Under
	// the default outlier policy the cheap one survives.
	pages[0][5].Account.Name = "Camila Damaceno Bispo"
	pages[2][10].Listing.PricingInfos[0].Price = 70

	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{"Pinheiros": pages}}
	repo := &fakeRepo{purged: 4}
	archive := &stubArchive{}
	events := memory.New()

	controller := newTestController(t, Params{
		Fetcher:    fetcher,
		Repo:       repo,
		Archive:    archive,
		Events:     events,
		StaleAfter: 30 * 24 * time.Hour,
	})

	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 237, summary.Fetched)
	assert.Equal(t, 0, summary.Dropped)
	assert.Equal(t, 1, summary.Removed, "only the deny-listed advertizer is removed")
	assert.Equal(t, 236, summary.Persisted)
	assert.Equal(t, int64(4), summary.Purged)
	assert.NotEmpty(t, summary.RunID)

	assert.Len(t, repo.upserted, 236)
	assert.Equal(t, crawlNow.Add(-30*24*time.Hour), repo.purgeCutoff)

	cheapSurvived := false
	for _, l := range repo.upserted {
		if l.ListingID == "zap-0210" {
			cheapSurvived = true
			assert.InDelta(t, 1.0, l.PricePerArea, 1e-9)
			assert.True(t, l.PricePerAreaInFirstQuartile)
		}
	}
	assert.True(t, cheapSurvived)

	require.Len(t, archive.objects, 3)
	assert.Contains(t, archive.objects[0], "raw/SP/São Paulo/Pinheiros/SALE/2026-03-10/")
	assert.Contains(t, archive.objects[0], "page-0000.json")

	require.Len(t, events.Events(), 1)
	event := events.Events()[0]
	assert.Equal(t, summary.RunID, event.RunID)
	assert.Equal(t, 236, event.Persisted)
	assert.Equal(t, int64(4), event.Purged)
}

func TestCrawlNeighborhoodDisjunctionRemovesOutlier(t *testing.T) {
	items := []zapapi.Listing{
		rawItem(0, 700000),
		rawItem(1, 705000),
		rawItem(2, 710000),
		rawItem(3, 715000),
		rawItem(4, 70), // price per area 1
	}
	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{"Pinheiros": {items}}}
	repo := &fakeRepo{}

	cfg := cleaning.DefaultConfig()
	cfg.OutlierPolicy = cleaning.OutlierPolicyDisjunction
	pipeline, err := cleaning.NewPipeline(cfg, nil)
	require.NoError(t, err)

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo, Pipeline: pipeline})

	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, 4, summary.Persisted)
	for _, l := range repo.upserted {
		assert.NotEqual(t, "zap-0004", l.ListingID)
	}
}

func TestCrawlNeighborhoodStopsOnPartialPage(t *testing.T) {
	items := make([]zapapi.Listing, 0, 37)
	for i := 0; i < 37; i++ {
		items = append(items, rawItem(i, 700000+i))
	}
	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{"Pinheiros": {items}}}
	repo := &fakeRepo{}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 1, fetcher.calls, "a partial page ends the walk without another fetch")
}

func TestCrawlNeighborhoodEmptyFirstPage(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{}}
	repo := &fakeRepo{}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Deserto"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pages, "the empty page was still fetched")
	assert.Zero(t, summary.Fetched)
	assert.Zero(t, summary.Persisted)
	assert.Empty(t, repo.upserted)
}

func TestCrawlNeighborhoodCountsZeroListingFinalPage(t *testing.T) {
	full := make([]zapapi.Listing, 0, zapapi.PageSize)
	for i := 0; i < zapapi.PageSize; i++ {
		full = append(full, rawItem(i, 700000+i))
	}
	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{"Pinheiros": {full}}}
	repo := &fakeRepo{}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.NoError(t, err)

	assert.Equal(t, 2, fetcher.calls, "a full page forces one more fetch")
	assert.Equal(t, 2, summary.Pages, "the trailing zero-listing page counts as fetched")
	assert.Equal(t, zapapi.PageSize, summary.Fetched)
}

func TestCrawlNeighborhoodSkipsExistingListings(t *testing.T) {
	items := []zapapi.Listing{rawItem(0, 700000), rawItem(1, 705000), rawItem(2, 710000)}
	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{"Pinheiros": {items}}}
	repo := &fakeRepo{existing: map[string]struct{}{"zap-0001": {}}}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Persisted)
	for _, l := range repo.upserted {
		assert.NotEqual(t, "zap-0001", l.ListingID, "a known listing is not re-normalized")
	}
}

func TestCrawlNeighborhoodExistingIDLoadFailureAborts(t *testing.T) {
	fetcher := &stubFetcher{}
	repo := &fakeRepo{existingErr: errors.New("connection refused")}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	_, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load existing listing ids")
	assert.Zero(t, fetcher.calls)
}

func TestCrawlNeighborhoodDropsMalformedListing(t *testing.T) {
	bad := rawItem(1, 700000)
	bad.Listing.UsableAreas = zapapi.FlexIntList{0}
	items := []zapapi.Listing{rawItem(0, 700000), bad}

	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{"Pinheiros": {items}}}
	repo := &fakeRepo{}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 1, summary.Persisted)
}

func TestCrawlNeighborhoodFetchFailureAborts(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("attempts exhausted")}
	repo := &fakeRepo{}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	_, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl aborted at page 0")
	assert.Empty(t, repo.upserted, "nothing is committed when the walk fails")
}

func TestCrawlNeighborhoodPurgeFailureAborts(t *testing.T) {
	fetcher := &stubFetcher{}
	repo := &fakeRepo{purgeErr: errors.New("connection refused")}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})
	_, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.Error(t, err)
	assert.Zero(t, fetcher.calls)
}

func TestCrawlNeighborhoodArchiveFailureIsBestEffort(t *testing.T) {
	items := []zapapi.Listing{rawItem(0, 700000)}
	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{"Pinheiros": {items}}}
	repo := &fakeRepo{}

	controller := newTestController(t, Params{
		Fetcher: fetcher,
		Repo:    repo,
		Archive: &stubArchive{err: errors.New("bucket gone")},
	})
	summary, err := controller.CrawlNeighborhood(context.Background(), crawlFilters("Pinheiros"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Persisted)
}

func TestCrawlCityResolvesDistricts(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string][][]zapapi.Listing{
		"Moema":     {{rawItem(0, 700000)}},
		"Pinheiros": {{rawItem(1, 800000)}},
	}}
	repo := &fakeRepo{city: store.City{ID: 3550308, State: "SP", Name: "São Paulo"}}
	districts := &stubDistricts{names: []string{"Moema", "Pinheiros"}}

	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo, Districts: districts})

	summaries, err := controller.CrawlCity(context.Background(), crawlFilters(""), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.lookups)
	assert.Equal(t, 1, districts.calls)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Moema", summaries[0].Filters.Neighborhood)
	assert.Equal(t, "Pinheiros", summaries[1].Filters.Neighborhood)
}

func TestCrawlCityUnknownCity(t *testing.T) {
	repo := &fakeRepo{cityErr: store.ErrNotFound}
	controller := newTestController(t, Params{
		Fetcher:   &stubFetcher{},
		Repo:      repo,
		Districts: &stubDistricts{},
	})

	_, err := controller.CrawlCity(context.Background(), crawlFilters(""), nil)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCrawlCityWithoutDistrictRegistry(t *testing.T) {
	controller := newTestController(t, Params{Fetcher: &stubFetcher{}, Repo: &fakeRepo{}})

	_, err := controller.CrawlCity(context.Background(), crawlFilters(""), nil)
	require.Error(t, err)
}

func TestCrawlCityAllNeighborhoodsFailed(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("portal down")}
	controller := newTestController(t, Params{Fetcher: fetcher, Repo: &fakeRepo{}})

	summaries, err := controller.CrawlCity(context.Background(), crawlFilters(""), []string{"Moema", "Pinheiros"})
	require.Error(t, err)
	assert.Empty(t, summaries)
}

func TestCrawlCityPartialFailure(t *testing.T) {
	fetcher := &stubFetcher{
		pages: map[string][][]zapapi.Listing{
			"Moema": {{rawItem(0, 700000)}},
		},
		failFor: "Pinheiros",
	}
	repo := &fakeRepo{}
	controller := newTestController(t, Params{Fetcher: fetcher, Repo: repo})

	summaries, err := controller.CrawlCity(context.Background(), crawlFilters(""), []string{"Pinheiros", "Moema"})
	require.NoError(t, err, "a failed neighborhood does not fail the city crawl")
	require.Len(t, summaries, 1)
	assert.Equal(t, "Moema", summaries[0].Filters.Neighborhood)
}

func TestCrawlCityStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &stubFetcher{err: context.Canceled}
	controller := newTestController(t, Params{Fetcher: fetcher, Repo: &fakeRepo{}})

	_, err := controller.CrawlCity(ctx, crawlFilters(""), []string{"Moema", "Pinheiros"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fetcher.calls, "cancellation stops the remaining neighborhoods")
}
