package meter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

// MockRoundTripper is a mock implementation of http.RoundTripper.
type MockRoundTripper struct {
	Handler func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Handler(req)
}

func TestGivEnergy(t *testing.T) {
	rt := &MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/v1/inverter/ABC12345/data-points/2025-01-01", req.URL.Path)
			assert.Equal(t, "Bearer dummyBearerToken", req.Header.Get("Authorization"))
			body := `{
				"data": [
					{"time": "2025-01-01T00:30:00Z", "total": {"grid": {"import": 1845.4, "export": 1630}}},
					{"time": "2025-01-01T00:00:00Z", "total": {"grid": {"import": 1842.3, "export": 1629.9}}},
					{"time": "2025-01-01T01:00:00Z", "total": {"grid": {"import": 1846.0, "export": 1630}}}
				],
				"meta": {"current_page": 1, "last_page": 1}
			}`
			h := make(http.Header)
			h.Set("Content-Type", "application/json")
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader([]byte(body))),
				Header:     h,
			}, nil
		},
	}

	g := NewGivEnergy(rt, "dummyBearerToken", "ABC12345", time.UTC)
	at := time.Date(2025, 1, 1, 0, 45, 0, 0, time.UTC)
	r, err := g.Reading(context.Background(), at)
	require.NoError(t, err)

	assert.InDelta(t, 1845400, r.ImportEnergyWH, 1e-6)
	assert.InDelta(t, 1630000, r.ExportEnergyWH, 1e-6)
	assert.True(t, r.ReadAt.Equal(time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC)))
	// 3.1 kWh in and 0.1 kWh out over half an hour
	assert.InDelta(t, 6000, r.DemandW, 1e-6)
}

func TestGivEnergyNoData(t *testing.T) {
	rt := &MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			h := make(http.Header)
			h.Set("Content-Type", "application/json")
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader([]byte(`{"data": [], "meta": {"current_page": 1, "last_page": 1}}`))),
				Header:     h,
			}, nil
		},
	}
	g := NewGivEnergy(rt, "token", "ABC12345", time.UTC)
	_, err := g.Reading(context.Background(), time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, types.ErrDataUnavailable))
}

func TestGivEnergyFailure(t *testing.T) {
	rt := &MockRoundTripper{
		Handler: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}
	g := NewGivEnergy(rt, "token", "ABC12345", time.UTC)
	_, err := g.Reading(context.Background(), time.Now())
	assert.True(t, errors.Is(err, types.ErrDataUnavailable))
}

func TestMock(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	profile := MockProfile{HomeKW: 1.5, SolarPeakKW: 3}

	a := NewMock(profile, time.UTC)
	b := NewMock(profile, time.UTC)

	first, err := a.Reading(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, 0.0, first.ImportEnergyWH)

	// night time only imports
	night, err := a.Reading(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Greater(t, night.ImportEnergyWH, 2000.0)
	assert.Equal(t, 0.0, night.ExportEnergyWH)
	assert.Greater(t, night.DemandW, 0.0)

	// midday exports
	noon, err := a.Reading(ctx, start.Add(12*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.Greater(t, noon.ExportEnergyWH, 0.0)
	assert.Less(t, noon.DemandW, 0.0)
	assert.GreaterOrEqual(t, noon.ImportEnergyWH, night.ImportEnergyWH)

	// going back in time does not move the counters
	again, err := a.Reading(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, noon.ImportEnergyWH, again.ImportEnergyWH)

	// the same reading times give the same readings
	_, err = b.Reading(ctx, start)
	require.NoError(t, err)
	_, err = b.Reading(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	same, err := b.Reading(ctx, start.Add(12*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, noon, same)

	_, err = a.Reading(ctx, time.Time{})
	assert.True(t, errors.Is(err, types.ErrDataUnavailable))
}

func TestMap(t *testing.T) {
	m := NewMap()
	_, err := m.Device(types.DeviceSettings{ID: "a", MeterSource: "mock"})
	assert.ErrorContains(t, err, "unknown meter source")

	var built int
	m.SetFactory("mock", func(device types.DeviceSettings) (Source, error) {
		built++
		return NewMock(MockProfile{}, nil), nil
	})
	s1, err := m.Device(types.DeviceSettings{ID: "a", MeterSource: "mock"})
	require.NoError(t, err)
	s2, err := m.Device(types.DeviceSettings{ID: "a", MeterSource: "mock"})
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, built)

	fixed := NewMock(MockProfile{}, nil)
	m.SetSource("b", fixed)
	s3, err := m.Device(types.DeviceSettings{ID: "b", MeterSource: "givenergy"})
	require.NoError(t, err)
	assert.Same(t, fixed, s3)
}
