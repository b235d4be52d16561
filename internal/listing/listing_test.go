package listing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusinessTypeValid(t *testing.T) {
	assert.True(t, BusinessSale.Valid())
	assert.True(t, BusinessRental.Valid())
	assert.False(t, BusinessType("LEASE").Valid())
	assert.False(t, BusinessType("").Valid())
}

func TestHasExactLocation(t *testing.T) {
	l := Listing{Precision: PrecisionExact, Latitude: -23.561, Longitude: -46.702}
	assert.True(t, l.HasExactLocation())

	l.Precision = PrecisionApproximate
	assert.False(t, l.HasExactLocation())

	l.Precision = PrecisionExact
	l.Latitude = math.NaN()
	assert.False(t, l.HasExactLocation())
}

func TestBoundingBoxContains(t *testing.T) {
	box := BoundingBox{MinLat: -23.562, MaxLat: -23.560, MinLon: -46.703, MaxLon: -46.701}

	assert.True(t, box.Contains(-23.561, -46.702))
	// Edges are inside.
	assert.True(t, box.Contains(-23.562, -46.701))
	assert.False(t, box.Contains(-23.559, -46.702))
	assert.False(t, box.Contains(-23.561, -46.704))
}
