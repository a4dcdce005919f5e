package ring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/htrace/htraced/pkg/ring"
)

func TestEmptyBufferAveragesAndMaxesAtZero(t *testing.T) {
	b := ring.New(3)
	assert.Equal(t, float64(0), b.Average())
	assert.Equal(t, int64(0), b.Max())
}

func TestAverageBeforeFillUsesOnlyInsertedSamples(t *testing.T) {
	b := ring.New(4)
	b.Add(10)
	b.Add(20)
	assert.Equal(t, float64(15), b.Average())
	assert.Equal(t, int64(20), b.Max())
}

func TestAverageAfterFillDropsOldestSamples(t *testing.T) {
	b := ring.New(3)
	b.Add(1)
	b.Add(2)
	b.Add(3)
	b.Add(4) // overwrites 1

	assert.Equal(t, float64(3), b.Average()) // (2+3+4)/3
	assert.Equal(t, int64(4), b.Max())
}

func TestMaxTracksCurrentWindowOnly(t *testing.T) {
	b := ring.New(2)
	b.Add(100)
	b.Add(1)
	b.Add(2) // overwrites 100

	assert.Equal(t, int64(2), b.Max())
}

func TestNewClampsNonPositiveSizeToOne(t *testing.T) {
	b := ring.New(0)
	b.Add(5)
	b.Add(9)
	assert.Equal(t, float64(9), b.Average())
	assert.Equal(t, int64(9), b.Max())
}
