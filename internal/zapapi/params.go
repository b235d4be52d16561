package zapapi

import (
	"fmt"
	"strconv"

	"github.com/zapdeals/zapdeals/internal/listing"
)

// PageSize is the fixed number of results requested per page.
const PageSize = 100

// listingsEndpoint is the paginated search endpoint of the glue API.
const listingsEndpoint = "https://glue-api.zapimoveis.com.br/v2/listings"

// UnitTypeParams expands the user-facing unit type into the three redundant
// parameter encodings the search endpoint expects.
type UnitTypeParams struct {
	UnitTypes   string
	UnitTypesV3 string
	UnitSubtype string
}

// ExpandUnitType maps APARTMENT or HOME onto the endpoint's unit type
// parameter triplet.
func ExpandUnitType(unitType string) (UnitTypeParams, error) {
	switch unitType {
	case "APARTMENT":
		return UnitTypeParams{
			UnitTypes:   "APARTMENT,APARTMENT,APARTMENT,APARTMENT,APARTMENT",
			UnitTypesV3: "APARTMENT,UnitType_NONE,PENTHOUSE,FLAT,LOFT",
			UnitSubtype: "APARTMENT,UnitSubType_NONE,DUPLEX,TRIPLEX|STUDIO|PENTHOUSE|FLAT",
		}, nil
	case "HOME":
		return UnitTypeParams{
			UnitTypes:   "HOME,HOME,HOME,HOME",
			UnitTypesV3: "HOME,TWO_STORY_HOUSE,CONDOMINIUM,VILLAGE_HOUSE",
			UnitSubtype: "UnitSubType_NONE,TWO_STORY_HOUSE,SINGLE_STOREY_HOUSE,KITNET|TWO_STORY_HOUSE|CONDOMINIUM|VILLAGE_HOUSE",
		}, nil
	default:
		return UnitTypeParams{}, fmt.Errorf("invalid unit type %q: must be APARTMENT or HOME", unitType)
	}
}

// queryParams builds the full query string values for one page of a search.
// Known unit types are expanded into the endpoint's redundant parameter
// triplet; anything else is passed through verbatim.
func queryParams(filters listing.SearchFilters, page int) map[string]string {
	unitParams := UnitTypeParams{
		UnitTypes:   filters.UnitType,
		UnitTypesV3: filters.UnitType,
	}
	if expanded, err := ExpandUnitType(filters.UnitType); err == nil {
		unitParams = expanded
	}

	from := page * PageSize
	params := map[string]string{
		"user":                "a521d36e-4582-4b70-8162-41d661323a54",
		"portal":              "ZAP",
		"categoryPage":        "RESULT",
		"developmentsSize":    "0",
		"superPremiumSize":    "0",
		"business":            string(filters.BusinessType),
		"parentId":            "null",
		"listingType":         "USED",
		"priceMin":            strconv.Itoa(filters.MinPrice),
		"priceMax":            strconv.Itoa(filters.MaxPrice),
		"unitTypesV3":         unitParams.UnitTypesV3,
		"unitTypes":           unitParams.UnitTypes,
		"addressCity":         filters.City,
		"addressState":        filters.State,
		"addressNeighborhood": filters.Neighborhood,
		"usableAreasMin":      strconv.Itoa(filters.MinArea),
		"page":                "1",
		"from":                strconv.Itoa(from),
		"size":                strconv.Itoa(PageSize),
		"usageTypes":          filters.UsageType,
		"levels":              "NEIGHBORHOOD",
		"addressPointLat":     "-23.563579",
		"addressPointLon":     "-46.691607",
	}
	if unitParams.UnitSubtype != "" {
		params["unitSubTypes"] = unitParams.UnitSubtype
	}
	return params
}

// requestHeaders returns the browser-like header set the endpoint expects.
// Requests without them are served bot-detection interstitials.
func requestHeaders() map[string]string {
	return map[string]string{
		"Accept":             "*/*",
		"Accept-Language":    "en-US,en;q=0.9,pt-BR;q=0.8,pt;q=0.7",
		"Authorization":      "Bearer undefined",
		"Connection":         "keep-alive",
		"DNT":                "1",
		"Origin":             "https://www.zapimoveis.com.br",
		"Referer":            "https://www.zapimoveis.com.br/",
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-site",
		"sec-ch-ua":          `"Chromium";v="116", "Not)A;Brand";v="24", "Google Chrome";v="116"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
		"x-domain":           ".zapimoveis.com.br",
	}
}
