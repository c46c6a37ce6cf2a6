/**
 * @description
 * HTTP router setup using go-chi/chi. User routes require a valid identity
 * provider token; admin routes additionally require an admin profile.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers all routes.
func NewRouter(h *Handler, authCfg AuthMiddlewareConfig, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Estien Capital API is healthy"))
	})

	r.Post("/api/admin/login", h.AdminLoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(SupabaseAuthMiddleware(authCfg))

		r.Post("/api/profile", h.ProfileRegisterHandler)
		r.Get("/api/profile", h.ProfileHandler)
		r.Get("/api/wallet", h.WalletHandler)
		r.Put("/api/security/pin", h.SetTransactionPINHandler)

		r.Post("/api/kyc/submit", h.KYCSubmitHandler)
		r.Get("/api/kyc/status", h.KYCStatusHandler)

		r.Post("/api/transactions/deposit", h.DepositHandler)
		r.Post("/api/transactions/withdraw", h.WithdrawHandler)
		r.Get("/api/transactions", h.ListTransactionsHandler)
		r.Get("/api/transactions/{id}", h.GetTransactionHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(h.service.IsAdmin))

			r.Put("/api/kyc/update-status/{id}", h.KYCUpdateStatusHandler)
			r.Post("/api/transactions/{id}/approve", h.ApproveTransactionHandler)
			r.Post("/api/transactions/{id}/reject", h.RejectTransactionHandler)

			r.Route("/api/admin", func(r chi.Router) {
				r.Get("/transaction-requests", h.AdminTransactionRequestsHandler)
				r.Get("/dashboard/metrics", h.AdminDashboardMetricsHandler)
				r.Get("/kyc-submissions", h.AdminKYCSubmissionsHandler)
				r.Get("/kyc-submissions/{id}", h.AdminKYCSubmissionHandler)

				r.Route("/groups", func(r chi.Router) {
					r.Post("/", h.CreateGroupHandler)
					r.Get("/", h.ListGroupsHandler)
					r.Get("/{id}", h.GetGroupHandler)
					r.Post("/{id}/members", h.AddGroupMemberHandler)
					r.Post("/{id}/transactions", h.GroupTransactionHandler)
					r.Post("/{id}/recompute", h.RecomputeGroupHandler)
					r.Get("/{id}/equity", h.GroupEquityHandler)
				})
			})
		})
	})

	return r
}
