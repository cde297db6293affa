package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/storage"
	"github.com/raterudder/meterbill/pkg/storage/storagemock"
	"github.com/raterudder/meterbill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func testServer(t *testing.T) (*Server, *storage.Memory) {
	ctx := context.Background()
	db := storage.NewMemory()
	require.NoError(t, db.PutDevice(ctx, types.DeviceSettings{
		ID:             "dev1",
		Name:           "Home",
		Location:       "Europe/London",
		BillingDay:     1,
		TariffProvider: "octopus",
		MeterSource:    "givenergy",
	}))
	_, err := db.Set(ctx, "dev1", "bill_value", types.NumberValue(5.35))
	require.NoError(t, err)
	_, err = db.Set(ctx, "dev1", "dispatching", types.NullValue())
	require.NoError(t, err)
	return &Server{storage: db, serverName: "test"}, db
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	w := get(t, srv.setupHandler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "test", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestListDevices(t *testing.T) {
	srv, _ := testServer(t)
	w := get(t, srv.setupHandler(), "/api/devices")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var res struct {
		Devices []deviceSummary `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Devices, 1)
	assert.Equal(t, "dev1", res.Devices[0].ID)
	assert.Equal(t, "octopus", res.Devices[0].TariffProvider)
}

func TestGetDevice(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.setupHandler()

	t.Run("found", func(t *testing.T) {
		w := get(t, h, "/api/devices/dev1")
		require.Equal(t, http.StatusOK, w.Code)

		var res struct {
			Device       deviceSummary `json:"device"`
			Capabilities []capability  `json:"capabilities"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "Home", res.Device.Name)
		require.Len(t, res.Capabilities, 2)
		assert.Equal(t, "bill_value", res.Capabilities[0].Name)
		assert.Equal(t, 5.35, res.Capabilities[0].Value)
		assert.Equal(t, "dispatching", res.Capabilities[1].Name)
		assert.Equal(t, types.ValueKindNull, res.Capabilities[1].Kind)
		assert.Nil(t, res.Capabilities[1].Value)
	})

	t.Run("missing", func(t *testing.T) {
		w := get(t, h, "/api/devices/nope")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "device not found")
	})
}

func TestGetCapability(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.setupHandler()

	w := get(t, h, "/api/devices/dev1/capabilities/bill_value")
	require.Equal(t, http.StatusOK, w.Code)
	var c capability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, capability{Name: "bill_value", Kind: types.ValueKindNumber, Value: 5.35}, c)

	w = get(t, h, "/api/devices/dev1/capabilities/price.import")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGzip(t *testing.T) {
	srv, db := testServer(t)
	for i := 0; i < 200; i++ {
		_, err := db.Set(context.Background(), "dev1", "padding_"+string(rune('a'+i%26))+string(rune('a'+i/26)), types.TextValue("some longer text value to compress"))
		require.NoError(t, err)
	}

	req := httptest.NewRequest("GET", "/api/devices/dev1", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"bill_value"`)
}

func TestStorageErrors(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("Devices", mock.Anything).Return(nil, errors.New("unavailable"))
	db.On("Device", mock.Anything, "dev1").Return(types.DeviceSettings{ID: "dev1"}, nil)
	db.On("List", mock.Anything, "dev1").Return(nil, errors.New("unavailable"))

	srv := &Server{storage: db}
	h := srv.setupHandler()

	w := get(t, h, "/api/devices")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed to list devices")

	w = get(t, h, "/api/devices/dev1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed to list capabilities")

	db.AssertExpectations(t)
}

func TestRunShutdown(t *testing.T) {
	srv, _ := testServer(t)
	srv.listenAddr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
