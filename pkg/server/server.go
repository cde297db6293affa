package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/common"
	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/storage"
	"github.com/raterudder/meterbill/pkg/types"
)

// Server exposes devices and their capabilities over HTTP.
type Server struct {
	storage storage.Database

	listenAddr string
	serverName string
	httpServer *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(s storage.Database) *Server {
	srv := &Server{
		storage:    s,
		serverName: "meterbill/" + common.Version(),
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/devices", s.handleListDevices)
	apiMux.HandleFunc("GET /api/devices/{deviceID}", s.handleGetDevice)
	apiMux.HandleFunc("GET /api/devices/{deviceID}/capabilities/{name}", s.handleGetCapability)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiMux)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// deviceSummary is a device as listed by the API.
type deviceSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Location       string `json:"location"`
	BillingDay     int    `json:"billingDay"`
	TariffProvider string `json:"tariffProvider"`
	MeterSource    string `json:"meterSource"`
	DispatchSource string `json:"dispatchSource,omitempty"`
}

func summarize(d types.DeviceSettings) deviceSummary {
	return deviceSummary{
		ID:             d.ID,
		Name:           d.Name,
		Location:       d.Location,
		BillingDay:     d.BillingDay,
		TariffProvider: d.TariffProvider,
		MeterSource:    d.MeterSource,
		DispatchSource: d.DispatchSource,
	}
}

type capability struct {
	Name  string          `json:"name"`
	Kind  types.ValueKind `json:"kind"`
	Value any             `json:"value"`
}

func toCapability(name string, v types.CapabilityValue) capability {
	kind := v.Kind
	if kind == "" {
		kind = types.ValueKindNull
	}
	return capability{Name: name, Kind: kind, Value: v.Any()}
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	devices, err := s.storage.Devices(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list devices", slog.Any("error", err))
		writeJSONError(w, "failed to list devices", http.StatusInternalServerError)
		return
	}

	res := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		res = append(res, summarize(d))
	}
	writeJSON(w, struct {
		Devices []deviceSummary `json:"devices"`
	}{Devices: res})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := log.WithDevice(r.Context(), r.PathValue("deviceID"))
	device, ok := s.device(ctx, w, r.PathValue("deviceID"))
	if !ok {
		return
	}

	caps, err := s.storage.List(ctx, device.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list capabilities", slog.Any("error", err))
		writeJSONError(w, "failed to list capabilities", http.StatusInternalServerError)
		return
	}
	list := make([]capability, 0, len(caps))
	for name, v := range caps {
		list = append(list, toCapability(name, v))
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	writeJSON(w, struct {
		Device       deviceSummary `json:"device"`
		Capabilities []capability  `json:"capabilities"`
	}{Device: summarize(device), Capabilities: list})
}

func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	ctx := log.WithDevice(r.Context(), r.PathValue("deviceID"))
	device, ok := s.device(ctx, w, r.PathValue("deviceID"))
	if !ok {
		return
	}

	name := r.PathValue("name")
	v, err := s.storage.Get(ctx, device.ID, name)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get capability", slog.String("capability", name), slog.Any("error", err))
		writeJSONError(w, "failed to get capability", http.StatusInternalServerError)
		return
	}
	if v == nil {
		writeJSONError(w, "capability not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toCapability(name, *v))
}

func (s *Server) device(ctx context.Context, w http.ResponseWriter, id string) (types.DeviceSettings, bool) {
	device, err := s.storage.Device(ctx, id)
	if errors.Is(err, storage.ErrDeviceNotFound) {
		writeJSONError(w, "device not found", http.StatusNotFound)
		return device, false
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get device", slog.Any("error", err))
		writeJSONError(w, "failed to get device", http.StatusInternalServerError)
		return device, false
	}
	return device, true
}
