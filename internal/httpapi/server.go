// Package httpapi exposes the analytics engine over HTTP: workbook uploads,
// pivot queries, exports, the contracts dashboard and the remote refresh
// hook. All state flows through the dataset stores; handlers are stateless.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"cpor-analytics/internal/dashboard"
	"cpor-analytics/internal/dataset"
	"cpor-analytics/internal/export"
	"cpor-analytics/internal/observability"
	"cpor-analytics/internal/pivot"
	"cpor-analytics/internal/remote"
)

// Pivot deadlines: past the soft one the response carries a warning, past
// the hard one the query aborts with a timeout.
const (
	DefaultSoftDeadline = 30 * time.Second
	DefaultHardDeadline = 60 * time.Second
)

// maxUploadBytes caps multipart upload bodies.
const maxUploadBytes = 64 << 20

// Options configures a Server. Store, Planner, Exporter and Dashboard are
// required; the rest defaults.
type Options struct {
	Store     *dataset.Store
	Planner   *pivot.Planner
	Exporter  *export.Exporter
	Dashboard *dashboard.Manager
	Fetcher   remote.WorkbookFetcher
	Metrics   *observability.Metrics
	Hub       *Hub
	Logger    *log.Logger

	// SyncToken guards the remote refresh endpoint when non-empty.
	SyncToken string

	SoftDeadline time.Duration
	HardDeadline time.Duration
	Clock        func() time.Time
}

// Server is the HTTP facade over the portal components.
type Server struct {
	router    *mux.Router
	store     *dataset.Store
	planner   *pivot.Planner
	exporter  *export.Exporter
	dash      *dashboard.Manager
	fetcher   remote.WorkbookFetcher
	metrics   *observability.Metrics
	hub       *Hub
	log       *log.Logger
	syncToken string

	softDeadline time.Duration
	hardDeadline time.Duration
	now          func() time.Time
	started      time.Time
}

func NewServer(opts Options) *Server {
	s := &Server{
		store:        opts.Store,
		planner:      opts.Planner,
		exporter:     opts.Exporter,
		dash:         opts.Dashboard,
		fetcher:      opts.Fetcher,
		metrics:      opts.Metrics,
		hub:          opts.Hub,
		log:          opts.Logger,
		syncToken:    opts.SyncToken,
		softDeadline: opts.SoftDeadline,
		hardDeadline: opts.HardDeadline,
		now:          opts.Clock,
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics("")
	}
	if s.log == nil {
		s.log = log.New(os.Stdout, "[httpapi] ", log.LstdFlags)
	}
	if s.hub == nil {
		s.hub = NewHub(s.log)
	}
	if s.softDeadline <= 0 {
		s.softDeadline = DefaultSoftDeadline
	}
	if s.hardDeadline <= 0 {
		s.hardDeadline = DefaultHardDeadline
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.started = s.now()
	s.router = s.routes()
	return s
}

// Hub returns the websocket hub, for wiring dataset-replacement hooks.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/datasets", s.handleListDatasets).Methods(http.MethodGet)
	api.HandleFunc("/filter-values", s.handleFilterValues).Methods(http.MethodGet)
	api.HandleFunc("/pivot", s.handlePivot).Methods(http.MethodPost)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodPost)
	api.HandleFunc("/dataset/{id}", s.handleDeleteDataset).Methods(http.MethodDelete)
	api.HandleFunc("/dataset/{id}/calculations", s.handleSetCalculations).Methods(http.MethodPost)

	api.HandleFunc("/dashboard", s.handleDashboardGet).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/upload", s.handleDashboardUpload).Methods(http.MethodPost)
	api.HandleFunc("/dashboard/query", s.handleDashboardQuery).Methods(http.MethodPost)
	api.HandleFunc("/dashboard/export", s.handleDashboardExport).Methods(http.MethodPost)
	api.HandleFunc("/dashboard/refresh-drive", s.handleDriveRefresh).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.HandleWS)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return r
}

// Handler returns the fully wrapped HTTP handler: request logging,
// instrumentation and permissive CORS for the SPA frontend.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Portal-Token"}),
	)
	return handlers.LoggingHandler(s.log.Writer(), cors(s.router))
}

// instrument records per-route request durations.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.RequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// healthzResponse is the JSON body of GET /healthz.
type healthzResponse struct {
	Status            string `json:"status"`
	Uptime            string `json:"uptime"`
	Datasets          int    `json:"datasets"`
	DashboardDatasets int    `json:"dashboardDatasets"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:            "ok",
		Uptime:            s.now().Sub(s.started).Round(time.Second).String(),
		Datasets:          s.store.Count(),
		DashboardDatasets: s.dash.Count(),
	})
}
