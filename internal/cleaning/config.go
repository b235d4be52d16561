package cleaning

import "fmt"

// OutlierPolicy selects how the IQR thresholds are combined when rejecting
// price-per-area outliers.
type OutlierPolicy string

const (
	// OutlierPolicyConjunction rejects a listing only when its price per
	// area is above the high threshold AND below the low threshold. For any
	// real distribution both can never hold at once, so this policy keeps
	// every listing. It reproduces the behavior the production dataset was
	// built with and is therefore the default.
	OutlierPolicyConjunction OutlierPolicy = "conjunction"
	// OutlierPolicyDisjunction rejects a listing when its price per area is
	// above the high threshold OR below the low threshold.
	OutlierPolicyDisjunction OutlierPolicy = "disjunction"
)

// Config carries the tunable knobs of the cleaning pipeline.
type Config struct {
	// DenyList holds advertizer names whose listings are always removed.
	DenyList []string
	// MaxPlausibleAreaM2 is the implausibility threshold for total area.
	// Listings strictly above it are treated as typos and removed.
	MaxPlausibleAreaM2 int
	// OutlierPolicy selects conjunction or disjunction threshold logic.
	OutlierPolicy OutlierPolicy
	// MinCohortSize is the minimum cohort size below which the outlier
	// stage is skipped entirely.
	MinCohortSize int
	// DedupIncludeFloor adds the floor number to the deduplication key.
	DedupIncludeFloor bool
}

// DefaultDenyList names advertizers repeatedly observed posting fraudulent
// listings on the portal.
var DefaultDenyList = []string{
	"Camila Damaceno Bispo",
	"Lucas Antônio",
	"Imóveis São Caetano",
	"São Caetano Imóveis",
	"Alex Matheus  Moura",
	"Claudia Cristina Ribeiro de Almeida",
}

// DefaultConfig returns the production cleaning configuration.
func DefaultConfig() Config {
	return Config{
		DenyList:           DefaultDenyList,
		MaxPlausibleAreaM2: 700,
		OutlierPolicy:      OutlierPolicyConjunction,
		MinCohortSize:      4,
		DedupIncludeFloor:  false,
	}
}

// Validate checks for unusable configuration values.
func (c Config) Validate() error {
	if c.MaxPlausibleAreaM2 <= 0 {
		return fmt.Errorf("cleaning: max plausible area must be > 0")
	}
	if c.MinCohortSize < 0 {
		return fmt.Errorf("cleaning: min cohort size must be >= 0")
	}
	switch c.OutlierPolicy {
	case OutlierPolicyConjunction, OutlierPolicyDisjunction:
	default:
		return fmt.Errorf("cleaning: unknown outlier policy %q", c.OutlierPolicy)
	}
	return nil
}
