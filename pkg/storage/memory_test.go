package storage

import (
	"context"
	"testing"
	"time"

	"github.com/raterudder/meterbill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("Capabilities", func(t *testing.T) {
		v, err := m.Get(ctx, "dev", "bill_value")
		require.NoError(t, err)
		assert.Nil(t, v)

		changed, err := m.Set(ctx, "dev", "bill_value", types.NumberValue(1.5))
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = m.Set(ctx, "dev", "bill_value", types.NumberValue(1.5))
		require.NoError(t, err)
		assert.False(t, changed)

		// first write of a null is still a change from never set
		changed, err = m.Set(ctx, "dev", "price.import", types.NullValue())
		require.NoError(t, err)
		assert.True(t, changed)

		v, err = m.Get(ctx, "dev", "bill_value")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, 1.5, v.Number)

		now := time.Now()
		_, err = m.Set(ctx, "dev", "day_start", types.TimeValue(now))
		require.NoError(t, err)
		changed, err = m.Set(ctx, "dev", "day_start", types.TimeValue(now.UTC()))
		require.NoError(t, err)
		assert.False(t, changed)

		all, err := m.List(ctx, "dev")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		_, err = m.Get(ctx, "", "bill_value")
		assert.ErrorContains(t, err, "deviceID cannot be empty")
	})

	t.Run("Devices", func(t *testing.T) {
		_, err := m.Device(ctx, "b")
		assert.ErrorIs(t, err, ErrDeviceNotFound)

		require.NoError(t, m.PutDevice(ctx, types.DeviceSettings{ID: "b", BillingDay: 3}))
		require.NoError(t, m.PutDevice(ctx, types.DeviceSettings{ID: "a", BillingDay: 1}))

		d, err := m.Device(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 3, d.BillingDay)

		devices, err := m.Devices(ctx)
		require.NoError(t, err)
		require.Len(t, devices, 2)
		assert.Equal(t, "a", devices[0].ID)
		assert.Equal(t, "b", devices[1].ID)

		assert.Error(t, m.PutDevice(ctx, types.DeviceSettings{}))
	})

	t.Run("DeviceStore", func(t *testing.T) {
		s := ForDevice(m, "scoped")
		changed, err := s.Set(ctx, "measure_power", types.NumberValue(10))
		require.NoError(t, err)
		assert.True(t, changed)

		v, err := m.Get(ctx, "scoped", "measure_power")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, 10.0, v.Number)
	})
}
