package tariff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, london)
	dayEnd := day.AddDate(0, 0, 1)

	t.Run("every rate in range and max is 3", func(t *testing.T) {
		values := make([]float64, 48)
		for i := range values {
			values[i] = 0.05 + float64((i*7)%48)*0.013
		}
		rates := dayOfRates(day, values...)
		classify, ok := Classify(rates, day, dayEnd)
		require.True(t, ok)

		hi := values[0]
		for _, v := range values {
			hi = max(hi, v)
			q := classify(v)
			assert.GreaterOrEqual(t, q, 0)
			assert.LessOrEqual(t, q, 3)
		}
		assert.Equal(t, 3, classify(hi))
	})

	t.Run("four rates are one per quartile", func(t *testing.T) {
		classify, ok := Classify(dayOfRates(day, 0.10, 0.20, 0.30, 0.40), day, dayEnd)
		require.True(t, ok)
		assert.Equal(t, 0, classify(0.10))
		assert.Equal(t, 1, classify(0.20))
		assert.Equal(t, 2, classify(0.30))
		assert.Equal(t, 3, classify(0.40))
	})

	t.Run("equal rates are all quartile 0", func(t *testing.T) {
		classify, ok := Classify(dayOfRates(day, 0.25, 0.25, 0.25), day, dayEnd)
		require.True(t, ok)
		assert.Equal(t, 0, classify(0.25))
	})

	t.Run("values outside the range clamp", func(t *testing.T) {
		classify, ok := Classify(dayOfRates(day, 0.10, 0.50), day, dayEnd)
		require.True(t, ok)
		assert.Equal(t, 0, classify(-1))
		assert.Equal(t, 3, classify(10))
	})

	t.Run("no rates today", func(t *testing.T) {
		_, ok := Classify(dayOfRates(day.AddDate(0, 0, 2), 0.1, 0.2), day, dayEnd)
		assert.False(t, ok)
	})
}
