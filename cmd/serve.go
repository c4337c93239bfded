package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/greenscore/internal/config"
	"github.com/sells-group/greenscore/internal/llm"
	"github.com/sells-group/greenscore/internal/model"
	"github.com/sells-group/greenscore/internal/monitoring"
	"github.com/sells-group/greenscore/internal/ocr"
	"github.com/sells-group/greenscore/internal/pipeline"
)

const (
	proposalField      = "proposal_file"
	requestIDHeader    = "X-Request-ID"
	defaultShutdown    = 10 * time.Second
	defaultMaxUploadMB = 20
	defaultLookbackHrs = 24
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the green analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		analyzer, err := initAnalyzer(ctx, cfg)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		collector := monitoring.NewCollector(time.Duration(lookbackHours(cfg.Monitoring)) * time.Hour)
		var background []func(context.Context)
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			background = append(background, checker.Run)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(analyzer, cfg.Server, collector, lookbackHours(cfg.Monitoring)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Strings("cors_origins", cfg.Server.AllowedOrigins()),
		)
		return serve(ctx, srv, ln, shutdownTimeout(cfg.Server), background...)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// uploadAnalyzer is the part of the pipeline the HTTP handler needs.
type uploadAnalyzer interface {
	AnalyzeUpload(ctx context.Context, doc io.Reader) (*model.Analysis, error)
}

// buildRouter wires the API routes, CORS and request IDs. A nil collector
// leaves /metrics reporting an empty window.
func buildRouter(a uploadAnalyzer, sc config.ServerConfig, metrics *monitoring.Collector, lookback int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   sc.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "working"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Collect(lookback))
	})
	r.Post("/api/v1/green-analysis", greenAnalysisHandler(a, maxUploadBytes(sc), metrics))

	return r
}

// requestID tags every request with a fresh ID, in the response header and
// on the context the pipeline logs with.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(pipeline.WithRequestID(r.Context(), id)))
	})
}

func greenAnalysisHandler(a uploadAnalyzer, maxBytes int64, metrics *monitoring.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := zap.L().With(zap.String("request_id", pipeline.RequestID(r.Context())))

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		file, header, err := r.FormFile(proposalField)
		if err != nil {
			if tooLarge(err) {
				log.Warn("upload rejected: too large", zap.Int64("max_bytes", maxBytes))
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
					"error": fmt.Sprintf("%s exceeds the %d MB upload limit", proposalField, maxBytes>>20),
				})
				return
			}
			log.Warn("upload rejected: missing file", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": proposalField + " is required"})
			return
		}
		defer file.Close() //nolint:errcheck
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll() //nolint:errcheck
		}

		log.Info("green analysis requested",
			zap.String("filename", header.Filename),
			zap.Int64("size", header.Size),
		)

		analysis, err := a.AnalyzeUpload(r.Context(), file)
		if err != nil {
			status, msg := errorStatus(err)
			log.Error("green analysis failed", zap.Int("status", status), zap.Error(err))
			metrics.RecordFailure(msg)
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}

		metrics.RecordAnalysis(analysis)
		writeJSON(w, http.StatusOK, analysis.Payload())
	}
}

// errorStatus maps pipeline failures onto HTTP statuses and client messages.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ocr.ErrDocumentUnreadable):
		return http.StatusUnprocessableEntity, "document unreadable"
	case errors.Is(err, llm.ErrModelTimeout):
		return http.StatusGatewayTimeout, "model call timed out"
	case errors.Is(err, llm.ErrModelCallFailed):
		return http.StatusBadGateway, "model call failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func maxUploadBytes(sc config.ServerConfig) int64 {
	mb := sc.MaxUploadMB
	if mb <= 0 {
		mb = defaultMaxUploadMB
	}
	return int64(mb) << 20
}

func lookbackHours(mc config.MonitoringConfig) int {
	if mc.LookbackWindowHours <= 0 {
		return defaultLookbackHrs
	}
	return mc.LookbackWindowHours
}

func shutdownTimeout(sc config.ServerConfig) time.Duration {
	if sc.ShutdownSecs <= 0 {
		return defaultShutdown
	}
	return time.Duration(sc.ShutdownSecs) * time.Second
}

// serve runs srv on ln until ctx is done, then drains in-flight requests
// for up to timeout. Each background func runs alongside and must return
// once its context is cancelled.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, background ...func(context.Context)) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, run := range background {
		g.Go(func() error {
			run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server serve")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})

	return g.Wait()
}
