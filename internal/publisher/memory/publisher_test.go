package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeals/zapdeals/internal/listing"
	"github.com/zapdeals/zapdeals/internal/publisher"
)

func TestPublisherStoresEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.PublishBatch(context.Background(), publisher.BatchEvent{
		City:         "São Paulo",
		Neighborhood: "Pinheiros",
		BusinessType: listing.BusinessSale,
		Persisted:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)

	id2, err := pub.PublishBatch(context.Background(), publisher.BatchEvent{
		City:         "São Paulo",
		Neighborhood: "Moema",
		BusinessType: listing.BusinessRental,
	})
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Pinheiros", events[0].Neighborhood)
	assert.Equal(t, "Moema", events[1].Neighborhood)

	events[0].Neighborhood = "modified"
	assert.NotEqual(t, "modified", pub.Events()[0].Neighborhood)
}
