package utility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raterudder/meterbill/pkg/tariff"
	"github.com/raterudder/meterbill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOUBand(t *testing.T) {
	night := TOUBand{HourStart: 23, HourEnd: 6}
	assert.True(t, night.Contains(23))
	assert.True(t, night.Contains(0))
	assert.False(t, night.Contains(6))
	assert.False(t, night.Contains(12))

	day := TOUBand{HourStart: 6, HourEnd: 24}
	assert.True(t, day.Contains(6))
	assert.True(t, day.Contains(23))
	assert.False(t, day.Contains(0))
}

func TestTOU(t *testing.T) {
	ctx := context.Background()
	u := NewTOU()

	_, err := u.Tariff(ctx, types.DirectionImport, time.Now())
	assert.True(t, errors.Is(err, types.ErrDataUnavailable))

	assert.Error(t, u.SetSchedule(types.DirectionImport, TOUSchedule{Bands: []TOUBand{{HourStart: 25, HourEnd: 3}}}))
	assert.Error(t, u.SetSchedule(types.DirectionImport, TOUSchedule{Location: "Nowhere/Invalid"}))

	require.NoError(t, u.SetSchedule(types.DirectionImport, TOUSchedule{
		StandingCharge: 52.5,
		VATRate:        0.05,
		Bands: []TOUBand{
			{HourStart: 0, HourEnd: 7, Rate: 0.075, Description: "Night"},
			{HourStart: 7, HourEnd: 24, Rate: 0.25, Description: "Day"},
			{HourStart: 16, HourEnd: 19, Rate: 0.10, Description: "Peak adder"},
		},
	}))

	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	at := time.Date(2024, 1, 15, 17, 10, 0, 0, london)

	def, err := u.Tariff(ctx, types.DirectionImport, at)
	require.NoError(t, err)
	hh, ok := def.(*types.HalfHourlyTariff)
	require.True(t, ok)
	assert.Len(t, hh.Rates, 96)
	assert.InDelta(t, 50.0, hh.PreVATStandingCharge, 1e-9)

	slot, err := tariff.NewResolver(london).Resolve(def, at)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, slot.Price.UnitRate, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 15, 17, 0, 0, 0, london), slot.ThisSlotStart)
	require.NotNil(t, slot.Quartile)
	assert.Equal(t, 3, *slot.Quartile)

	// a 23 hour day has 46 slots
	dst, err := u.Tariff(ctx, types.DirectionImport, time.Date(2024, 3, 31, 12, 0, 0, 0, london))
	require.NoError(t, err)
	assert.Len(t, dst.(*types.HalfHourlyTariff).Rates, 46+48)
}

func TestTOUGaps(t *testing.T) {
	u := NewTOU()
	require.NoError(t, u.SetSchedule(types.DirectionExport, TOUSchedule{
		Location: "UTC",
		Bands:    []TOUBand{{HourStart: 10, HourEnd: 16, Rate: 0.15}},
	}))

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	def, err := u.Tariff(context.Background(), types.DirectionExport, at)
	require.NoError(t, err)
	assert.Len(t, def.(*types.HalfHourlyTariff).Rates, 24)

	_, err = tariff.NewResolver(time.UTC).Resolve(def, at)
	assert.ErrorIs(t, err, tariff.ErrNoPrice)
}
