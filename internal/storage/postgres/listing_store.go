// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/store"
)

// commercialUnitTypes are excluded from deal queries; the dashboard targets
// residential units only.
var commercialUnitTypes = []string{
	"OFFICE",
	"BUSINESS",
	"COMMERCIAL_PROPERTY",
	"COMMERCIAL_BUILDING",
	"SHED_DEPOSIT_WAREHOUSE",
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// ListingStore implements store.Repository on a pgx connection pool.
type ListingStore struct {
	pool pgPool
}

// NewListingStore connects a pool using the provided config.
func NewListingStore(ctx context.Context, cfg Config) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: pool}, nil
}

// NewListingStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewListingStoreWithPool(pool pgPool) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ListingStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ExistingIDs returns the set of listing IDs already persisted for the
// crawl's city, neighborhood and business type.
func (s *ListingStore) ExistingIDs(ctx context.Context, f listing.SearchFilters) (map[string]struct{}, error) {
	query := `
		SELECT listing_id FROM fact_listings
		WHERE city = $1 AND neighborhood = $2 AND business_type = $3;
	`
	rows, err := s.pool.Query(ctx, query, f.City, f.Neighborhood, f.BusinessType)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan listing id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing ids: %w", err)
	}
	return ids, nil
}

// ZipCodes loads all cached zip-code complements.
func (s *ListingStore) ZipCodes(ctx context.Context) ([]listing.ZipCodeComplement, error) {
	rows, err := s.pool.Query(ctx, `SELECT zip_code, complement FROM dim_zip_code;`)
	if err != nil {
		return nil, fmt.Errorf("query zip codes: %w", err)
	}
	defer rows.Close()

	var zips []listing.ZipCodeComplement
	for rows.Next() {
		var z listing.ZipCodeComplement
		if err := rows.Scan(&z.ZipCode, &z.Complement); err != nil {
			return nil, fmt.Errorf("scan zip code: %w", err)
		}
		zips = append(zips, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zip codes: %w", err)
	}
	return zips, nil
}

// ImageCells loads all cached satellite-analysis cells.
func (s *ListingStore) ImageCells(ctx context.Context) ([]listing.ImageAnalysisCell, error) {
	query := `
		SELECT min_lat, max_lat, min_lon, max_lon, green_density, is_next_to_park
		FROM fact_image_analysis;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query image cells: %w", err)
	}
	defer rows.Close()

	var cells []listing.ImageAnalysisCell
	for rows.Next() {
		var c listing.ImageAnalysisCell
		err := rows.Scan(
			&c.Box.MinLat, &c.Box.MaxLat, &c.Box.MinLon, &c.Box.MaxLon,
			&c.GreenDensity, &c.IsNextToPark,
		)
		if err != nil {
			return nil, fmt.Errorf("scan image cell: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image cells: %w", err)
	}
	return cells, nil
}

// TrafficCells loads all cached transit-analysis cells.
func (s *ListingStore) TrafficCells(ctx context.Context) ([]listing.TrafficAnalysisCell, error) {
	query := `
		SELECT min_lat, max_lat, min_lon, max_lon, n_nearby_bus_lanes
		FROM fact_traffic_analysis;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query traffic cells: %w", err)
	}
	defer rows.Close()

	var cells []listing.TrafficAnalysisCell
	for rows.Next() {
		var c listing.TrafficAnalysisCell
		err := rows.Scan(
			&c.Box.MinLat, &c.Box.MaxLat, &c.Box.MinLon, &c.Box.MaxLon,
			&c.NNearbyBusLanes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan traffic cell: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traffic cells: %w", err)
	}
	return cells, nil
}

// StatsCohort returns the comparable listings for outlier detection. Only the
// ID and price-per-area columns are loaded; the statistics never touch the
// rest of the row.
func (s *ListingStore) StatsCohort(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error) {
	query := `
		SELECT listing_id, price_per_area FROM fact_listings
		WHERE city = $1 AND neighborhood = $2 AND business_type = $3 AND unit_type = $4
		  AND price >= $5 AND ($6 = 0 OR price <= $6)
		  AND total_area_m2 >= $7;
	`
	return s.queryCohort(ctx, query,
		f.City, f.Neighborhood, f.BusinessType, f.UnitType,
		f.MinPrice, f.MaxPrice, f.MinArea,
	)
}

// QuartileCohort returns the listings for first-quartile scoring: everything
// in the city, neighborhood and business type regardless of unit type or
// price bounds.
func (s *ListingStore) QuartileCohort(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error) {
	query := `
		SELECT listing_id, price_per_area FROM fact_listings
		WHERE city = $1 AND neighborhood = $2 AND business_type = $3;
	`
	return s.queryCohort(ctx, query, f.City, f.Neighborhood, f.BusinessType)
}

func (s *ListingStore) queryCohort(ctx context.Context, query string, args ...any) ([]listing.Listing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cohort: %w", err)
	}
	defer rows.Close()

	var cohort []listing.Listing
	for rows.Next() {
		var l listing.Listing
		if err := rows.Scan(&l.ListingID, &l.PricePerArea); err != nil {
			return nil, fmt.Errorf("scan cohort row: %w", err)
		}
		cohort = append(cohort, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cohort: %w", err)
	}
	return cohort, nil
}

const insertListingQuery = `
INSERT INTO fact_listings (
	listing_id, description, listing_date, updated_at, new_listing,
	business_type, unit_type, bedrooms, bathrooms, vacancies, floor,
	construction_year, total_area_m2,
	country, state, city, neighborhood, zip_code, street_address,
	street_number, location_type, address, latitude, longitude,
	precision, green_density, is_next_to_park, n_nearby_bus_lanes, is_quiet,
	price, condo_fee, price_per_area,
	url, advertizer, primary_phone, account_is_unlicensed, recent_account,
	price_per_area_in_first_quartile
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
	$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,
	$37,$38
);`

func insertListingArgs(l listing.Listing) []any {
	return []any{
		l.ListingID, l.Description, l.ListingDate, l.UpdatedAt, l.NewListing,
		l.BusinessType, l.UnitType, l.Bedrooms, l.Bathrooms, l.Vacancies, l.Floor,
		l.ConstructionYear, l.TotalAreaM2,
		l.Country, l.State, l.City, l.Neighborhood, l.ZipCode, l.StreetAddr,
		l.StreetNumber, l.LocationType, l.Address, l.Latitude, l.Longitude,
		l.Precision, l.GreenDensity, l.IsNextToPark, l.NNearbyBusLanes, l.IsQuiet,
		l.Price, l.CondoFee, l.PricePerArea,
		l.URL, l.Advertizer, l.PrimaryPhone, l.AccountUnlicensed, l.RecentAccount,
		l.PricePerAreaInFirstQuartile,
	}
}

// UpsertListings replaces the given listings in one transaction: matching
// rows are deleted first, then the fresh rows inserted. A re-run with the
// same batch converges to the same table state.
func (s *ListingStore) UpsertListings(ctx context.Context, listings []listing.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ListingID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM fact_listings WHERE listing_id = ANY($1);`, ids); err != nil {
		return fmt.Errorf("delete replaced listings: %w", err)
	}
	for _, l := range listings {
		if _, err := tx.Exec(ctx, insertListingQuery, insertListingArgs(l)...); err != nil {
			return fmt.Errorf("insert listing %s: %w", l.ListingID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// UpsertZipCodes inserts newly discovered complements. Already-cached zip
// codes are left untouched.
func (s *ListingStore) UpsertZipCodes(ctx context.Context, zips []listing.ZipCodeComplement) error {
	query := `
		INSERT INTO dim_zip_code (zip_code, complement)
		VALUES ($1, $2)
		ON CONFLICT (zip_code) DO NOTHING;
	`
	for _, z := range zips {
		if _, err := s.pool.Exec(ctx, query, z.ZipCode, z.Complement); err != nil {
			return fmt.Errorf("upsert zip code %s: %w", z.ZipCode, err)
		}
	}
	return nil
}

// AppendImageCells appends newly computed satellite cells.
func (s *ListingStore) AppendImageCells(ctx context.Context, cells []listing.ImageAnalysisCell) error {
	query := `
		INSERT INTO fact_image_analysis
			(min_lat, max_lat, min_lon, max_lon, green_density, is_next_to_park)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	for _, c := range cells {
		_, err := s.pool.Exec(ctx, query,
			c.Box.MinLat, c.Box.MaxLat, c.Box.MinLon, c.Box.MaxLon,
			c.GreenDensity, c.IsNextToPark,
		)
		if err != nil {
			return fmt.Errorf("append image cell: %w", err)
		}
	}
	return nil
}

// AppendTrafficCells appends newly computed transit cells.
func (s *ListingStore) AppendTrafficCells(ctx context.Context, cells []listing.TrafficAnalysisCell) error {
	query := `
		INSERT INTO fact_traffic_analysis
			(min_lat, max_lat, min_lon, max_lon, n_nearby_bus_lanes)
		VALUES ($1, $2, $3, $4, $5);
	`
	for _, c := range cells {
		_, err := s.pool.Exec(ctx, query,
			c.Box.MinLat, c.Box.MaxLat, c.Box.MinLon, c.Box.MaxLon,
			c.NNearbyBusLanes,
		)
		if err != nil {
			return fmt.Errorf("append traffic cell: %w", err)
		}
	}
	return nil
}

// PurgeStale deletes listings in the crawl's scope not updated since the
// cutoff, returning the number of rows removed.
func (s *ListingStore) PurgeStale(ctx context.Context, f listing.SearchFilters, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM fact_listings
		WHERE city = $1 AND neighborhood = $2 AND business_type = $3
		  AND updated_at < $4;
	`
	tag, err := s.pool.Exec(ctx, query, f.City, f.Neighborhood, f.BusinessType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge stale listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

const selectListingColumns = `
	listing_id, description, listing_date, updated_at, new_listing,
	business_type, unit_type, bedrooms, bathrooms, vacancies, floor,
	construction_year, total_area_m2,
	country, state, city, neighborhood, zip_code, street_address,
	street_number, location_type, address, latitude, longitude,
	precision, green_density, is_next_to_park, n_nearby_bus_lanes, is_quiet,
	price, condo_fee, price_per_area,
	url, advertizer, primary_phone, account_is_unlicensed, recent_account,
	price_per_area_in_first_quartile`

func scanListing(rows pgx.Rows) (listing.Listing, error) {
	var l listing.Listing
	err := rows.Scan(
		&l.ListingID, &l.Description, &l.ListingDate, &l.UpdatedAt, &l.NewListing,
		&l.BusinessType, &l.UnitType, &l.Bedrooms, &l.Bathrooms, &l.Vacancies, &l.Floor,
		&l.ConstructionYear, &l.TotalAreaM2,
		&l.Country, &l.State, &l.City, &l.Neighborhood, &l.ZipCode, &l.StreetAddr,
		&l.StreetNumber, &l.LocationType, &l.Address, &l.Latitude, &l.Longitude,
		&l.Precision, &l.GreenDensity, &l.IsNextToPark, &l.NNearbyBusLanes, &l.IsQuiet,
		&l.Price, &l.CondoFee, &l.PricePerArea,
		&l.URL, &l.Advertizer, &l.PrimaryPhone, &l.AccountUnlicensed, &l.RecentAccount,
		&l.PricePerAreaInFirstQuartile,
	)
	return l, err
}

// Deals returns the residential first-quartile listings for a city, cheapest
// per square meter first.
func (s *ListingStore) Deals(ctx context.Context, city string, businessType listing.BusinessType) ([]listing.Listing, error) {
	query := `
		SELECT` + selectListingColumns + `
		FROM fact_listings
		WHERE city = $1 AND business_type = $2
		  AND price_per_area_in_first_quartile
		  AND NOT (unit_type = ANY($3))
		ORDER BY price_per_area ASC;
	`
	rows, err := s.pool.Query(ctx, query, city, businessType, commercialUnitTypes)
	if err != nil {
		return nil, fmt.Errorf("query deals: %w", err)
	}
	defer rows.Close()

	var deals []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal row: %w", err)
		}
		deals = append(deals, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}
	return deals, nil
}

// Cities lists the distinct cities that currently have listings.
func (s *ListingStore) Cities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT city FROM fact_listings ORDER BY city;`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, city)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return cities, nil
}

// CityLookup resolves the city dimension row by state acronym and name.
func (s *ListingStore) CityLookup(ctx context.Context, state, city string) (store.City, error) {
	query := `
		SELECT c.id, s.acronym, c.name
		FROM dim_cities c
		JOIN dim_states s ON s.id = c.state_id
		WHERE s.acronym = $1 AND c.name = $2;
	`
	var row store.City
	err := s.pool.QueryRow(ctx, query, state, city).Scan(&row.ID, &row.State, &row.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.City{}, store.ErrNotFound
		}
		return store.City{}, fmt.Errorf("lookup city %s/%s: %w", state, city, err)
	}
	return row, nil
}
