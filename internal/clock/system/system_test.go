package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockDefaultsToUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New(nil).Now()
	after := time.Now().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after))
}

func TestClockLocation(t *testing.T) {
	t.Parallel()

	kst := time.FixedZone("KST", 9*60*60)
	got := New(kst).Now()
	require.Equal(t, kst, got.Location())
	_, offset := got.Zone()
	assert.Equal(t, 9*60*60, offset)
}

func TestFixed(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 12, 27, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, at, Fixed(at).Now())
}
