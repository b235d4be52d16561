package cleaning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantile(t *testing.T) {
	values := []float64{10, 20, 30, 40}

	tests := []struct {
		name   string
		values []float64
		q      float64
		want   float64
	}{
		{name: "median of even count interpolates", values: values, q: 0.5, want: 25},
		{name: "first quartile interpolates", values: values, q: 0.25, want: 17.5},
		{name: "third quartile interpolates", values: values, q: 0.75, want: 32.5},
		{name: "zero returns minimum", values: values, q: 0, want: 10},
		{name: "one returns maximum", values: values, q: 1, want: 40},
		{name: "single element", values: []float64{42}, q: 0.5, want: 42},
		{name: "unsorted input", values: []float64{40, 10, 30, 20}, q: 0.5, want: 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Quantile(tt.values, tt.q), 1e-9)
		})
	}
}

func TestQuantileEmptyInput(t *testing.T) {
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestQuantileDoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Quantile(values, 0.5)
	assert.Equal(t, []float64{3, 1, 2}, values)
}
