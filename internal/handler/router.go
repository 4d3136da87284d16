package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/apse-storefront/internal/middleware"
	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
)

// SetupRouter настраивает HTTP-маршруты и middleware API витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/request-reset", h.RequestReset)
			r.Post("/reset-password", h.ResetPassword)
			r.Get("/verify-email/{token}", h.VerifyEmail)
			r.Post("/resend-verification", h.ResendVerification)
			r.With(h.authMiddleware.Middleware).Get("/me", h.Me)
		})

		r.Get("/categories", h.ListCategories)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Get("/services", h.ListServices)
		r.Get("/services/{id}", h.GetService)
		r.Post("/services/{id}/calculate-price", h.CalculatePrice)

		r.Get("/partners", h.ListPartners)
		r.Get("/partners/{id}", h.GetPartner)
		r.Post("/partners/search", h.SearchPartners)
		r.Get("/market-data", h.ListMarketData)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/services/{id}/purchase", h.PurchaseService)
			r.Get("/services/user/my-services", h.MyServices)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{id}", h.GetOrder)

			r.Get("/addresses", h.ListAddresses)
			r.Post("/addresses", h.AddAddress)
			r.Put("/addresses/{id}/default", h.SetDefaultAddress)

			r.Get("/wallet/balance", h.GetBalance)
			r.Get("/wallet/transactions", h.GetTransactions)
			r.Post("/wallet/load", h.CreateWalletOrder)

			r.Post("/payments/wallet/create-order", h.CreateWalletOrder)
			r.Post("/payments/wallet/verify", h.VerifyWalletPayment)
			r.Post("/payments/service/create-order", h.CreateServiceOrder)
			r.Post("/payments/service/verify", h.VerifyServicePayment)
			r.Post("/payments/{orderId}/cancel", h.CancelPayment)

			r.Post("/partners/register", h.RegisterPartner)

			r.Post("/messages/send", h.SendMessage)
			r.Get("/messages/received", h.listMessages(repository.BoxReceived))
			r.Get("/messages/sent", h.listMessages(repository.BoxSent))
			r.Get("/messages/support", h.listMessages(repository.BoxSupport))
			r.Put("/messages/{id}/read", h.markMessage(model.MessageRead))
			r.Put("/messages/{id}/archive", h.markMessage(model.MessageArchived))

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleAdmin))

				r.Get("/pricing-rules", h.ListPricingRules)
				r.Post("/pricing-rules", h.CreatePricingRule)
				r.Patch("/pricing-rules/{id}", h.UpdatePricingRule)
				r.Delete("/pricing-rules/{id}", h.DeletePricingRule)

				r.Get("/partners/pending", h.PendingPartners)
				r.Post("/partners/{id}/approve", h.ApprovePartner)
				r.Post("/partners/{id}/reject", h.RejectPartner)

				r.Get("/users", h.ListUsers)
				r.Patch("/users/{id}/status", h.SetUserStatus)
				r.Patch("/users/{id}/role", h.SetUserRole)

				r.Post("/wallets/{userId}/refund", h.RefundWallet)
				r.Patch("/wallets/{userId}/status", h.SetWalletStatus)

				r.Post("/market-data", h.PublishMarketData)

				r.Get("/analytics/summary", h.AnalyticsSummary)
				r.Get("/analytics/top-partners", h.TopPartners)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
