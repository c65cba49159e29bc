// Package api serves the local control API: tile taps and renders, the DNS
// host list, preferences, recent logs and a websocket stream of tile updates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"qtsettings/internal/detect"
	"qtsettings/internal/dot"
	"qtsettings/internal/logging"
	"qtsettings/internal/revert"
	"qtsettings/internal/settings"
	"qtsettings/internal/store"
	"qtsettings/internal/tile"
	"qtsettings/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Deps are the components the API drives. Detectors, Prober and Logs are
// optional.
type Deps struct {
	DNS       *tile.DNS
	USB       *tile.USB
	Prefs     *store.Prefs
	Port      settings.Port
	Detectors *detect.Host
	Prober    *dot.Prober
	Logs      *logging.Buffer
	Hub       *Hub
	Version   string
}

type Server struct {
	deps    Deps
	router  chi.Router
	server  *http.Server
	probes  *utils.ConcurrencyLimiter
	limiter *RateLimiter
}

// Status is the response of GET /api/status.
type Status struct {
	Version    string                              `json:"version"`
	Privileged bool                                `json:"privileged"`
	DevMode    bool                                `json:"developer_mode"`
	Tiles      map[settings.Tile]tile.Presentation `json:"tiles"`
	Reverts    map[settings.Tile]RevertStatus      `json:"reverts"`
	Detectors  map[string]bool                     `json:"background_detectors"`
}

// RevertStatus describes a pending auto-revert.
type RevertStatus struct {
	Phase            string `json:"phase"`
	Target           string `json:"target,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
}

type tapResponse struct {
	tile.Result
	Error string `json:"error,omitempty"`
}

type hostRequest struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
}

type selectRequest struct {
	Selected bool `json:"selected"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		probes:  utils.NewConcurrencyLimiter(utils.MaxConcurrentProbes),
		limiter: NewRateLimiter(60, time.Minute),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/ws", s.deps.Hub.ServeWS)
	r.Get("/api/logs", s.handleLogs)

	r.Route("/api/tiles", func(r chi.Router) {
		r.Get("/", s.handleTiles)
		r.With(s.limiter.Middleware).Post("/{tile}/tap", s.handleTap)
		r.Post("/{tile}/cancel", s.handleCancel)
	})

	r.Route("/api/hosts", func(r chi.Router) {
		r.Get("/", s.handleListHosts)
		r.Post("/", s.handleAddHost)
		r.Post("/import", s.handleImportHosts)
		r.Put("/{id}", s.handleEditHost)
		r.Delete("/{id}", s.handleDeleteHost)
		r.Put("/{id}/selected", s.handleSelectHost)
	})

	r.Route("/api/prefs", func(r chi.Router) {
		r.Get("/", s.handlePrefs)
		r.Put("/{key}", s.handleSetPref)
	})
	return r
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	logrus.Infof("Starting API server on %s", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("API request")
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, apiError{Code: status, Message: message})
}

// handleError converts store errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnknownKey):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrBuiltinImmutable):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidHost), errors.Is(err, store.ErrInvalidValue):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).Error("API request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, utils.MaxHTTPBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"healthy": true})
}

func (s *Server) render(ctx context.Context) map[settings.Tile]tile.Presentation {
	return map[settings.Tile]tile.Presentation{
		settings.TileDNS: s.deps.DNS.Render(ctx),
		settings.TileUSB: s.deps.USB.Render(ctx),
	}
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.render(r.Context()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hosts := s.deps.Prefs.Hosts(ctx)

	status := Status{
		Version:    s.deps.Version,
		Privileged: s.deps.Port.IsPrivilegeGranted(ctx),
		DevMode:    s.deps.Port.IsDeveloperModeOn(ctx),
		Tiles:      s.render(ctx),
		Reverts: map[settings.Tile]RevertStatus{
			settings.TileDNS: revertStatus(s.deps.DNS.Timer().Status(), func(v settings.DnsState) string { return tile.DNSName(v, hosts) }),
			settings.TileUSB: revertStatus(s.deps.USB.Timer().Status(), tile.USBName),
		},
		Detectors: map[string]bool{},
	}
	if s.deps.Detectors != nil {
		for _, name := range []string{"vpn", "network"} {
			status.Detectors[name] = s.deps.Detectors.Alive(name)
		}
	}
	respondJSON(w, http.StatusOK, status)
}

func revertStatus[T any](st revert.Status[T], name func(T) string) RevertStatus {
	out := RevertStatus{Phase: st.Phase.String()}
	if st.Phase == revert.Armed {
		out.Target = name(st.Captured)
		out.RemainingSeconds = st.RemainingSeconds()
	}
	return out
}

func tapStatus(o tile.Outcome) int {
	switch o {
	case tile.Changed, tile.Unchanged:
		return http.StatusOK
	case tile.Denied:
		return http.StatusForbidden
	case tile.NoCandidates, tile.DevModeOff:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	kind, ok := settings.ParseTile(chi.URLParam(r, "tile"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown tile")
		return
	}

	var res tile.Result
	switch kind {
	case settings.TileDNS:
		res = s.deps.DNS.Tap(r.Context())
	case settings.TileUSB:
		res = s.deps.USB.Tap(r.Context())
	}
	s.deps.Hub.BroadcastTile(res.Presentation)

	resp := tapResponse{Result: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	respondJSON(w, tapStatus(res.Outcome), resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	kind, ok := settings.ParseTile(chi.URLParam(r, "tile"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown tile")
		return
	}

	var cancelled bool
	var p tile.Presentation
	switch kind {
	case settings.TileDNS:
		cancelled = s.deps.DNS.Cancel(r.Context())
		p = s.deps.DNS.Render(r.Context())
	case settings.TileUSB:
		cancelled = s.deps.USB.Cancel(r.Context())
		p = s.deps.USB.Render(r.Context())
	}
	s.deps.Hub.BroadcastTile(p)
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Prefs.Hosts(r.Context()))
}

// verify probes hostname when ?verify=true; it writes the error response
// itself and returns false when the add must not proceed.
func (s *Server) verify(w http.ResponseWriter, r *http.Request, hostname string) bool {
	if v, _ := strconv.ParseBool(r.URL.Query().Get("verify")); !v {
		return true
	}
	if s.deps.Prober == nil {
		respondError(w, http.StatusNotImplemented, "DoT probing is not configured")
		return false
	}
	if !s.probes.TryAcquire() {
		respondError(w, http.StatusServiceUnavailable, "too many probes in flight")
		return false
	}
	defer s.probes.Release()

	if _, err := s.deps.Prober.Probe(r.Context(), hostname); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "hostname does not answer DNS-over-TLS: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleAddHost(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !decode(w, r, &req) {
		return
	}
	if err := store.ValidateHostname(req.Hostname); err != nil {
		handleError(w, err)
		return
	}
	if !s.verify(w, r, req.Hostname) {
		return
	}

	rec, err := s.deps.Prefs.AddCustomHost(r.Context(), req.Name, req.Hostname)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleImportHosts(w http.ResponseWriter, r *http.Request) {
	data, err := utils.ReadAllLimited(http.MaxBytesReader(w, r.Body, utils.MaxHostListSize), utils.MaxHostListSize)
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	hosts, err := s.deps.Prefs.ImportHosts(r.Context(), data)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleEditHost(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.deps.Prefs.EditCustomHost(r.Context(), chi.URLParam(r, "id"), req.Name, req.Hostname)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Prefs.DeleteCustomHost(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSelectHost(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.deps.Prefs.SetHostSelected(r.Context(), chi.URLParam(r, "id"), req.Selected); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"selected": req.Selected})
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Prefs.Values(r.Context()))
}

func isDetectionKey(key string) bool {
	switch key {
	case store.KeyVPNDetection, store.KeyVPNDetectionMode, store.KeyNetworkDetection, store.KeyNetworkDetectionMode:
		return true
	}
	return false
}

func (s *Server) handleSetPref(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.deps.Prefs.SetValue(r.Context(), key, req.Value); err != nil {
		handleError(w, err)
		return
	}
	if isDetectionKey(key) && s.deps.Detectors != nil {
		// The request context ends with the response; watchers use the host's own.
		s.deps.Detectors.Apply(context.WithoutCancel(r.Context()))
	}
	respondJSON(w, http.StatusOK, map[string]string{key: s.deps.Prefs.Values(r.Context())[key]})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		respondJSON(w, http.StatusOK, []logging.Entry{})
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = 100
	}
	respondJSON(w, http.StatusOK, s.deps.Logs.Recent(n))
}
