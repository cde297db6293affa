package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateDeviceSettings(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateDeviceSettings(DeviceSettings{ID: "a"})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 1, s.BillingDay)
		assert.Equal(t, DefaultLocation, s.Location)
		assert.Equal(t, "static", s.TariffProvider)
		assert.Equal(t, "mock", s.MeterSource)
		assert.Equal(t, CurrentDeviceSettingsVersion, s.Version)
	})

	t.Run("v1 to v3: keeps billing day", func(t *testing.T) {
		s, changed, err := MigrateDeviceSettings(DeviceSettings{ID: "a", BillingDay: 15, Version: 1})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 15, s.BillingDay)
		assert.Equal(t, DefaultLocation, s.Location)
	})

	t.Run("v2 to v3: keeps explicit collaborators", func(t *testing.T) {
		s, changed, err := MigrateDeviceSettings(DeviceSettings{
			ID:             "a",
			BillingDay:     3,
			Location:       "Europe/Dublin",
			TariffProvider: "octopus",
			MeterSource:    "givenergy",
			Version:        2,
		})
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "octopus", s.TariffProvider)
		assert.Equal(t, "givenergy", s.MeterSource)
		assert.Equal(t, CurrentDeviceSettingsVersion, s.Version)
	})

	t.Run("no change: current version", func(t *testing.T) {
		current := DeviceSettings{ID: "a", BillingDay: 1, Version: CurrentDeviceSettingsVersion}
		s, changed, err := MigrateDeviceSettings(current)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, current, s)
	})
}

func TestDeviceSettingsValidate(t *testing.T) {
	s := DeviceSettings{ID: "a", BillingDay: 31, Location: "America/Chicago"}
	require.NoError(t, s.Validate())
	loc, err := s.LoadLocation()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())

	s = DeviceSettings{ID: "a", BillingDay: 0}
	assert.ErrorContains(t, s.Validate(), "billing day")

	s = DeviceSettings{BillingDay: 1}
	assert.ErrorContains(t, s.Validate(), "device id cannot be empty")

	s = DeviceSettings{ID: "a", BillingDay: 1, Location: "Invalid/Location"}
	assert.ErrorContains(t, s.Validate(), "failed to load location")
}
