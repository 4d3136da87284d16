package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/service"
)

// GetBalance возвращает кошелёк текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), uid)
	if err != nil {
		h.fail(w, err, "get wallet", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusOK, wallet)
}

// GetTransactions возвращает журнал операций кошелька текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	history, err := h.service.GetTransactions(r.Context(), uid)
	if err != nil {
		h.fail(w, err, "get transactions", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusOK, history)
}

type walletOrderRequest struct {
	Amount model.Money `json:"amount"`
}

// CreateWalletOrder создаёт заказ шлюза на пополнение кошелька.
func (h *Handler) CreateWalletOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req walletOrderRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := h.service.CreateWalletOrder(r.Context(), uid, req.Amount)
	if err != nil {
		h.fail(w, err, "create wallet order", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusOK, order)
}

// VerifyWalletPayment проверяет платёж пополнения и возвращает обновлённый кошелёк.
func (h *Handler) VerifyWalletPayment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req service.PaymentProof
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.VerifyWalletPayment(r.Context(), uid, req)
	if err != nil {
		h.fail(w, err, "verify wallet payment", zap.String("userID", uid), zap.String("orderID", req.OrderID))
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"wallet":      res.Wallet,
		"transaction": res.Transaction,
	})
}

// CancelPayment отмечает платёж проваленным после закрытия окна оплаты.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "orderId")
	tx, err := h.service.CancelPayment(r.Context(), uid, orderID)
	if err != nil {
		h.fail(w, err, "cancel payment", zap.String("userID", uid), zap.String("orderID", orderID))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: tx, Message: service.CancelledByUser})
}

type purchaseRequest struct {
	CalculatedPrice *model.Money     `json:"calculatedPrice"`
	PaymentMethod   string           `json:"paymentMethod"`
	Filters         *pricing.Filters `json:"filters"`
}

// PurchaseService начинает работу над услугой для текущего пользователя.
// Заголовок Idempotency-Key защищает от повторного создания при повторе запроса.
func (h *Handler) PurchaseService(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	serviceID := chi.URLParam(r, "id")
	us, err := h.service.PurchaseService(r.Context(), uid, serviceID, service.PurchaseRequest{
		CalculatedPrice: req.CalculatedPrice,
		Filters:         req.Filters,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, err, "purchase service", zap.String("userID", uid), zap.String("serviceID", serviceID))
		return
	}
	respond(w, http.StatusCreated, us)
}

type serviceOrderRequest struct {
	UserServiceID string      `json:"userServiceId" validate:"required"`
	Amount        model.Money `json:"amount"`
	PaymentMethod string      `json:"paymentMethod" validate:"required,oneof=WALLET RAZORPAY"`
}

// CreateServiceOrder оплачивает услугу с кошелька или создаёт заказ шлюза.
func (h *Handler) CreateServiceOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req serviceOrderRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := h.service.CreateServiceOrder(r.Context(), uid, req.UserServiceID, req.Amount, model.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.fail(w, err, "create service order", zap.String("userID", uid), zap.String("userServiceID", req.UserServiceID))
		return
	}
	respond(w, http.StatusOK, order)
}

type verifyServiceRequest struct {
	service.PaymentProof
	UserServiceID string `json:"userServiceId" validate:"required"`
}

// VerifyServicePayment проверяет платёж шлюза за услугу.
func (h *Handler) VerifyServicePayment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req verifyServiceRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.VerifyServicePayment(r.Context(), uid, req.UserServiceID, req.PaymentProof)
	if err != nil {
		h.fail(w, err, "verify service payment", zap.String("userID", uid), zap.String("orderID", req.OrderID))
		return
	}
	respond(w, http.StatusOK, res)
}

// MyServices возвращает услуги текущего пользователя.
func (h *Handler) MyServices(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	services, err := h.service.ListUserServices(r.Context(), uid)
	if err != nil {
		h.fail(w, err, "list user services", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusOK, nonNil(services))
}
