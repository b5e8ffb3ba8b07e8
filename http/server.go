package http

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/config"
	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/http/handlers"
	apxmiddlewares "github.com/metacogma/meetcapture/http/middleware"
	apxresp "github.com/metacogma/meetcapture/http/response"
	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/services/monitoring"
	"github.com/metacogma/meetcapture/utils/helpers"
)

// Server is the operator-facing HTTP surface: the capture-session REST
// routes plus the /watch WebSocket upgrade, wrapped in a
// request-id/logging/recover/cors middleware stack.
type Server struct {
	Logger  *zap.Logger
	Conf    *config.EngineConfig
	Capture *handlers.CaptureHandler
	Checker *monitoring.HealthChecker

	server *http.Server
}

func NewServer(conf *config.EngineConfig, capture *handlers.CaptureHandler, checker *monitoring.HealthChecker) *Server {
	return &Server{
		Logger:  logger.Logger,
		Conf:    conf,
		Capture: capture,
		Checker: checker,
	}
}

// Handler returns the fully configured router, letting callers (notably
// integration tests) front it with an httptest.Server instead of Listen's
// real net.Listener.
func (s *Server) Handler() http.Handler {
	return s.router()
}

func (s *Server) router() http.Handler {
	os.Setenv("BASE_PATH", strings.Replace(s.Conf.Prefix, "/", "", -1))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apxmiddlewares.NewLoggerWithMetrics(s.Logger, &apxmiddlewares.Opts{
		WithReferer:   false,
		WithUserAgent: false,
	}))
	r.Use(middleware.Recoverer)
	r.Use(apxmiddlewares.EnabCors(s.Conf.Cors.AllowedOrigins))

	if s.Checker != nil {
		r.Get("/health", s.Checker.HealthHandler())
	}
	r.Get("/metrics", monitoring.PrometheusHandler())

	r.Route(s.Conf.Prefix, func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sessions/{meeting_id}", func(r chi.Router) {
				r.Post("/join", s.ToHTTPHandlerFunc(s.Capture.Join))
				r.Post("/leave", s.ToHTTPHandlerFunc(s.Capture.Leave))
				r.Get("/status", s.ToHTTPHandlerFunc(s.Capture.Status))
				r.Post("/screenshot", s.ToHTTPHandlerFunc(s.Capture.Screenshot))
				r.Post("/toggle-recording", s.ToHTTPHandlerFunc(s.Capture.ToggleRecording))
				r.Get("/watch", s.Capture.Watch)
			})
		})
	})

	return r
}

// Listen starts the server and blocks until ctx is cancelled or the server
// fails, gracefully shutting down on cancellation.
func (s *Server) Listen(ctx context.Context, addr string) error {
	s.server = &http.Server{Addr: addr, Handler: s.router()}

	errch := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr))
		errch <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errch:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// Shutdown satisfies the shutdown coordinator's expected interface once
// Listen has started the underlying *http.Server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) ToHTTPHandlerFunc(handler func(w http.ResponseWriter, r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, status, err := handler(w, r)
		if err != nil {
			switch e := err.(type) {
			case *apxerrors.Error:
				helpers.PrintStruct(e)
				apxresp.RespondError(w, e)
			default:
				s.Logger.Error("internal error", zap.Error(err))
				apxresp.RespondMessage(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		if response != nil {
			apxresp.RespondJSON(w, status, response)
		}
	}
}
