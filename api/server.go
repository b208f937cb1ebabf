/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address for rate limiting and logs
  3. Logger:     zap request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counters (when configured)
  6. CORS:       Cross-origin requests for frontends
  7. RateLimit:  Per-IP request budget (when configured)

ROUTE GROUPS:
  /healthz                                  Liveness, unauthenticated
  /metrics                                  Prometheus, unauthenticated
  /api/employers                            Register, look up own employer
  /api/employers/{employer}/...             Everything scoped to one employer
  /api/scenarios                            Demo employers

AUTHORIZATION:
  Every /api route needs a caller (bearer token subject). Owner-only routes
  manage the employer; self routes (attendance, leave requests) are for the
  employee named in the path; read routes admit both.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Caller identity
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/metrics"
)

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	AllowOrigins []string
	RateLimit    int // requests per minute per client IP, 0 = unlimited
	Auth         *Authenticator
	Metrics      *metrics.Metrics // optional
	Logger       *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, CallerHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator("", true)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/employers", h.RegisterEmployer)
		r.Get("/employers/mine", h.GetOwnEmployer)

		// Scenario routes
		r.Get("/scenarios", h.ListScenarios)
		r.Post("/scenarios/load", h.LoadScenarioHandler)

		r.Route("/employers/{employer}", func(r chi.Router) {
			r.Use(h.loadBook)

			// Owner-only employer management
			r.Group(func(r chi.Router) {
				r.Use(requireOwner)
				r.Get("/employees", h.ListEmployees)
				r.Post("/employees", h.HireEmployee)
				r.Put("/working-hours", h.UpdateWorkingHours)
				r.Get("/working-hours/history", h.ScheduleHistory)
				r.Post("/leave-grants", h.GrantAnnualLeave)
				r.Post("/payroll/run", h.RunPayroll)
				r.Get("/payroll/runs", h.ListPayrollRuns)
				r.Get("/reports/attendance.xlsx", h.AttendanceReport)
				r.Get("/leaves.ics", h.LeaveCalendar)
			})

			r.Get("/", h.GetEmployer)
			r.Get("/working-hours", h.GetWorkingHours)

			r.Route("/employees/{employee}", func(r chi.Router) {
				// Owner-only employee management
				r.Group(func(r chi.Router) {
					r.Use(requireOwner)
					r.Delete("/", h.FireEmployee)
					r.Post("/fines", h.ApplyFine)
					r.Post("/bonuses", h.ApplyBonus)
					r.Post("/leave-adjustments", h.AdjustPaidLeave)
					r.Post("/leaves/{request}/process", h.ProcessLeave)
					r.Post("/settle", h.SettleEmployee)
				})

				// The employee acting on their own record
				r.Group(func(r chi.Router) {
					r.Use(requireSelf)
					r.Post("/attendance/check-in", h.CheckIn)
					r.Post("/attendance/check-out", h.CheckOut)
					r.Post("/attendance/mark", h.MarkAttendance)
					r.Post("/leaves", h.RequestLeave)
				})

				// Readable by the owner and the employee
				r.Group(func(r chi.Router) {
					r.Use(requireOwnerOrSelf)
					r.Get("/", h.GetEmployee)
					r.Get("/attendance", h.AttendanceRange)
					r.Get("/attendance/{date}", h.GetAttendance)
					r.Get("/leaves", h.ListLeaves)
					r.Get("/leaves.ics", h.LeaveCalendar)
					r.Get("/leaves/{request}", h.GetLeave)
					r.Get("/leave-balance", h.LeaveBalance)
					r.Get("/salary", h.GetSalary)
					r.Get("/transactions", h.GetTransactions)
				})
			})
		})
	})

	return r
}
