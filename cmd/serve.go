package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
	"github.com/sells-group/gazette-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics, health and run history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		// Registers the pipeline collectors on the default registry.
		monitoring.Default()

		var collector *monitoring.Collector
		if st != nil {
			collector = monitoring.NewCollector(st, stalledAfter())
		}
		if cfg.Monitoring.Enabled && collector != nil {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		// A separate metrics listener keeps /metrics off the public port.
		separateMetrics := cfg.Server.MetricsAddr != ""
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler: newRouter(st, collector, routerOptions{
				LookbackHours: cfg.Monitoring.LookbackWindowHours,
				Metrics:       !separateMetrics,
				CORSOrigins:   cfg.Server.CORSOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers := []*http.Server{srv}
		if separateMetrics {
			mr := chi.NewRouter()
			mr.Handle("/metrics", promhttp.Handler())
			servers = append(servers, &http.Server{
				Addr:              cfg.Server.MetricsAddr,
				Handler:           mr,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			for _, s := range servers {
				_ = s.Shutdown(shutdownCtx)
			}
		}()

		errc := make(chan error, len(servers))
		for _, s := range servers {
			go func() {
				zap.L().Info("starting server", zap.String("addr", s.Addr))
				if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- eris.Wrapf(err, "server listen %s", s.Addr)
					return
				}
				errc <- nil
			}()
		}

		var firstErr error
		for range servers {
			if err := <-errc; err != nil && firstErr == nil {
				firstErr = err
				stop()
			}
		}
		return firstErr
	},
}

type routerOptions struct {
	LookbackHours int      // default /stats window
	Metrics       bool     // serve /metrics on this router
	CORSOrigins   []string // browser origins allowed to read the API
}

// newRouter builds the HTTP API. st and collector may be nil, in which case
// the history endpoints answer 503.
func newRouter(st store.Store, collector *monitoring.Collector, opts routerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	h := &historyHandler{store: st, collector: collector, lookbackHours: opts.LookbackHours}
	r.Route("/runs", func(r chi.Router) {
		r.Use(h.requireStore)
		r.Get("/", h.listRuns)
		r.Get("/{id}", h.getRun)
		r.Get("/{id}/outcomes", h.listOutcomes)
		r.Get("/{id}/publications", h.listPublications)
	})
	r.With(h.requireStore).Get("/stats", h.stats)
	return r
}

type historyHandler struct {
	store         store.Store
	collector     *monitoring.Collector
	lookbackHours int
}

func (h *historyHandler) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.store == nil || h.collector == nil {
			writeError(w, http.StatusServiceUnavailable, "run history is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *historyHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *historyHandler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *historyHandler) listOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.store.ListOutcomes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if outcomes == nil {
		outcomes = []model.ProcessingOutcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (h *historyHandler) listPublications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.PublicationFilter{
		RunID:        chi.URLParam(r, "id"),
		Number:       q.Get("number"),
		Jurisdiction: q.Get("jurisdiction"),
	}
	if s := q.Get("min_score"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_score")
			return
		}
		filter.MinScore = v
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	pubs, err := h.store.ListPublications(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if pubs == nil {
		pubs = []model.ScoredPublication{}
	}
	writeJSON(w, http.StatusOK, pubs)
}

func (h *historyHandler) stats(w http.ResponseWriter, r *http.Request) {
	hours := h.lookbackHours
	if s := r.URL.Query().Get("hours"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = v
	}
	snap, err := h.collector.Collect(r.Context(), hours)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *historyHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("http handler failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return v, nil
}

// stalledAfter is how long a queued or running run may go without an update
// before it counts as stalled.
func stalledAfter() time.Duration {
	return time.Duration(cfg.Monitoring.StalledAfterMinutes) * time.Minute
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
