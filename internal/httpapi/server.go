// Package httpapi exposes the request surface. The layer is deliberately
// thin: handlers parse query parameters, call the watch service, and map
// its errors onto status codes and the Polish user-facing messages.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pkkwatch/internal/registry"
	"pkkwatch/internal/statusapi"
	"pkkwatch/internal/watch"
	logx "pkkwatch/pkg/logx"
)

// User-facing response messages. Polish, part of the public contract.
const (
	msgAdded          = "Dodano numer PKK"
	msgUnsubscribed   = "Odsubskrybowano"
	msgDuplicate      = "Już subsrybujesz dany numer PKK"
	msgNoEmail        = "Nie podano adresu email"
	msgMissingFields  = "Nie podano wystarczającej liczby danych"
	msgUnavailable    = "Nie można pobrać statusu dla tego numeru PKK"
	msgNotSubscribed  = "Obecnie nie subskrybujesz powiadomień dla tego PKK"
	msgSubscribeFirst = "Najpierw musisz dodać ten numer PKK"
)

type Config struct {
	Addr         string // default ":8080"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg Config
	log logx.Logger
	svc *watch.Service
	srv *http.Server
	ln  net.Listener
}

func New(cfg Config, svc *watch.Service, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, log: log, svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	// GET with query parameters; existing clients depend on this shape.
	r.Get("/checking/subscribe", s.handleSubscribe)
	r.Get("/checking/unsubscribe", s.handleUnsubscribe)
	r.Get("/checking/current", s.handleCurrent)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.String("addr", s.cfg.Addr), logx.Err(err))
		}
	}()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("http shutdown error", logx.Err(err))
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := watch.SubscribeRequest{
		Name:      q.Get("name"),
		Surname:   q.Get("surname"),
		PKK:       q.Get("pkk"),
		Email:     q.Get("email"),
		PushToken: q.Get("androidClientId"),
	}

	err := s.svc.Subscribe(r.Context(), req)
	switch {
	case err == nil:
		writeText(w, http.StatusOK, msgAdded)
	case errors.Is(err, registry.ErrDuplicateSubscription):
		writeText(w, http.StatusBadRequest, msgDuplicate)
	case errors.Is(err, watch.ErrNoChannel):
		writeText(w, http.StatusBadRequest, msgNoEmail)
	case errors.Is(err, watch.ErrMissingFields):
		writeText(w, http.StatusBadRequest, msgMissingFields)
	case errors.Is(err, statusapi.ErrUnavailable):
		writeText(w, http.StatusBadRequest, msgUnavailable)
	default:
		s.log.Error("subscribe failed", logx.String("pkk", req.PKK), logx.Err(err))
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	pkk := r.URL.Query().Get("pkk")

	err := s.svc.Unsubscribe(r.Context(), pkk)
	switch {
	case err == nil:
		writeText(w, http.StatusOK, msgUnsubscribed)
	case errors.Is(err, registry.ErrNotSubscribed):
		writeText(w, http.StatusNotFound, msgNotSubscribed)
	default:
		s.log.Error("unsubscribe failed", logx.String("pkk", pkk), logx.Err(err))
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	pkk := r.URL.Query().Get("pkk")

	entry, err := s.svc.Current(r.Context(), pkk)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, entry)
	case errors.Is(err, registry.ErrNotSubscribed):
		writeText(w, http.StatusBadRequest, msgSubscribeFirst)
	case errors.Is(err, statusapi.ErrUnavailable):
		writeText(w, http.StatusBadRequest, msgUnavailable)
	default:
		s.log.Error("current status failed", logx.String("pkk", pkk), logx.Err(err))
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)))
	})
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
