package finder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerFinder(t *testing.T) {

	bf := NewBrokerFinder("")

	source, found, err := bf.FindNextSource(context.Background())
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, DefaultLabel, source)

	claimed, err := bf.ClaimSource(source)
	assert.NoError(t, err)
	assert.Equal(t, source, claimed)

	assert.NoError(t, bf.MarkSourceProcessed(claimed))
	assert.NoError(t, bf.MarkSourceFailed(claimed))
}

func TestBrokerFinderStopsWithContext(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, found, err := NewBrokerFinder("orders").FindNextSource(ctx)
	assert.False(t, found)
	assert.ErrorIs(t, err, context.Canceled)
}
