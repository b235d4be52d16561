// Package zapapi talks to the ZAP Imóveis glue listings API: it builds the
// paginated search requests and decodes the raw page payloads the normalizer
// consumes.
package zapapi

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexInt decodes upstream numeric fields that arrive either as JSON numbers
// or as quoted strings ("600000"). Empty strings decode to zero.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(data, `"`)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = 0
		return nil
	}
	// Some fields come through as floats ("80.0").
	v, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}

// Int returns the plain int value.
func (f FlexInt) Int() int { return int(f) }

// FlexIntList decodes arrays whose elements are numbers or numeric strings.
type FlexIntList []FlexInt

// First returns the first element, or 0 when the list is empty.
func (l FlexIntList) First() int {
	if len(l) == 0 {
		return 0
	}
	return l[0].Int()
}

// Page is the decoded payload of one paginated search response.
type Page struct {
	Search struct {
		Result struct {
			Listings []Listing `json:"listings"`
		} `json:"result"`
		TotalCount int `json:"totalCount"`
	} `json:"search"`
}

// Listings extracts the listings array; an absent array is valid and yields
// an empty slice, not an error.
func (p Page) Listings() []Listing {
	return p.Search.Result.Listings
}

// Listing is one raw search-result element with the nested listing, account
// and link substructures the pipeline extracts.
type Listing struct {
	Listing ListingData `json:"listing"`
	Account Account     `json:"account"`
	Link    Link        `json:"link"`
}

// ListingData is the nested "listing" substructure.
type ListingData struct {
	SourceID      string        `json:"sourceId"`
	Title         string        `json:"title"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
	DeliveredAt   string        `json:"deliveredAt"`
	UnitTypes     []string      `json:"unitTypes"`
	UnitFloor     FlexInt       `json:"unitFloor"`
	UsableAreas   FlexIntList   `json:"usableAreas"`
	Bedrooms      FlexIntList   `json:"bedrooms"`
	Bathrooms     FlexIntList   `json:"bathrooms"`
	ParkingSpaces FlexIntList   `json:"parkingSpaces"`
	Address       Address       `json:"address"`
	Geolocation   *Geolocation  `json:"displayAddressGeolocation"`
	PricingInfos  []PricingInfo `json:"pricingInfos"`
}

// Address is the nested address substructure.
type Address struct {
	City         string `json:"city"`
	StateAcronym string `json:"stateAcronym"`
	Neighborhood string `json:"neighborhood"`
	ZipCode      string `json:"zipCode"`
	Country      string `json:"country"`
}

// Geolocation carries the upstream display coordinates when present.
type Geolocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PricingInfo is one entry of the pricingInfos list. Sale listings carry the
// absolute price; rental listings nest the monthly total under rentalInfo.
type PricingInfo struct {
	BusinessType    string  `json:"businessType"`
	Price           FlexInt `json:"price"`
	MonthlyCondoFee FlexInt `json:"monthlyCondoFee"`
	RentalInfo      struct {
		MonthlyRentalTotalPrice FlexInt `json:"monthlyRentalTotalPrice"`
	} `json:"rentalInfo"`
}

// Account is the advertizer account substructure.
type Account struct {
	Name          string `json:"name"`
	LicenseNumber string `json:"licenseNumber"`
	CreatedDate   string `json:"createdDate"`
	Phones        struct {
		Primary string `json:"primary"`
	} `json:"phones"`
}

// Link carries the listing URL path plus the street-level address fields that
// only appear under link.data.
type Link struct {
	Href string `json:"href"`
	Data struct {
		Street       string `json:"street"`
		StreetNumber string `json:"streetNumber"`
	} `json:"data"`
}

// DecodePage parses a raw page body.
func DecodePage(body []byte) (Page, error) {
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}
