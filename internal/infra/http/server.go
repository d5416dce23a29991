// Package http exposes the core's inbound and read contracts: a payment
// confirmation webhook, member/group management, and the reporting endpoints
// the dashboard consumes. Rendering is the caller's business; every amount
// leaves here as an integer in minor currency units.
package http

import (
	"context"
	"net/http"
	"time"

	"chamaledger/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

func NewServer(addr string, ledgerSvc *app.LedgerService, reportSvc *app.ReportService, logger *logrus.Logger) *Server {
	h := &handlers{ledger: ledgerSvc, reports: reportSvc, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	router.Route("/api", func(r chi.Router) {
		r.Post("/payments", h.recordPayment)
		r.Post("/groups", h.createGroup)
		r.Post("/groups/{groupID}/members", h.registerMember)
		r.Get("/groups/{groupID}/stats", h.groupStats)
		r.Get("/groups/{groupID}/payments", h.recentPayments)
		r.Get("/groups/{groupID}/top-contributors", h.topContributors)
		r.Get("/members/{memberID}/balance", h.memberBalance)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("http server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
