package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mmeshcher/vehicle-register-system/internal/authz"
	custommiddleware "github.com/mmeshcher/vehicle-register-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware системы регистрации ТС.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		// Операции заявителя.
		r.With(custommiddleware.RequireOperation(authz.OpCreateOrder)).Post("/", h.CreateOrder)
		r.With(custommiddleware.RequireOperation(authz.OpViewOwnOrders)).Get("/my", h.GetMyOrders)
		r.With(custommiddleware.RequireOperation(authz.OpViewOrder)).Get("/{id}", h.GetOrder)
		r.With(custommiddleware.RequireOperation(authz.OpEditOrder)).Put("/{id}", h.EditOrder)
		r.With(custommiddleware.RequireOperation(authz.OpDeleteOrder)).Delete("/{id}", h.DeleteOrder)
		r.With(custommiddleware.RequireOperation(authz.OpSubmitOrder)).Post("/{id}/submit", h.SubmitOrder)

		// Операции валидатора.
		r.With(custommiddleware.RequireOperation(authz.OpViewQueue)).Get("/queue", h.GetValidatorQueue)
		r.With(custommiddleware.RequireOperation(authz.OpReturnOrder)).Post("/{id}/return", h.ReturnOrder)
		r.With(custommiddleware.RequireOperation(authz.OpSetInProgress)).Post("/{id}/in-progress", h.SetInProgress)

		// Операции регистратора пластин.
		r.With(custommiddleware.RequireOperation(authz.OpRegisterBoard)).Post("/{id}/board", h.RegisterBoard)

		// Операции администратора.
		r.With(custommiddleware.RequireOperation(authz.OpViewByStatuses)).Get("/", h.GetByStatuses)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
