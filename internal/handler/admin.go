package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/service"
)

// ListPricingRules возвращает все правила цены.
func (h *Handler) ListPricingRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListPricingRules(r.Context())
	if err != nil {
		h.fail(w, err, "list pricing rules")
		return
	}
	respond(w, http.StatusOK, nonNil(rules))
}

type pricingRuleRequest struct {
	ServiceID   string   `json:"serviceId" validate:"required"`
	Name        *string  `json:"name"`
	PricingType string   `json:"pricingType" validate:"required,oneof=FIXED PERCENTAGE"`
	Value       float64  `json:"value" validate:"gte=0"`
	Category    *string  `json:"category"`
	Geography   *string  `json:"geography"`
	Seasonality *string  `json:"seasonality"`
	BuyerType   *string  `json:"buyerType"`
	MinVolume   *float64 `json:"minVolume"`
	MaxVolume   *float64 `json:"maxVolume"`
	Priority    int      `json:"priority"`
	IsActive    *bool    `json:"isActive"`
}

// CreatePricingRule создаёт правило цены.
func (h *Handler) CreatePricingRule(w http.ResponseWriter, r *http.Request) {
	var req pricingRuleRequest
	if !decode(w, r, &req) {
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule, err := h.service.CreatePricingRule(r.Context(), model.PricingRule{
		ServiceID:   req.ServiceID,
		Name:        req.Name,
		PricingType: model.PricingType(req.PricingType),
		Value:       req.Value,
		Category:    req.Category,
		Geography:   req.Geography,
		Seasonality: req.Seasonality,
		BuyerType:   req.BuyerType,
		MinVolume:   req.MinVolume,
		MaxVolume:   req.MaxVolume,
		Priority:    req.Priority,
		IsActive:    active,
	})
	if err != nil {
		h.fail(w, err, "create pricing rule", zap.String("serviceID", req.ServiceID))
		return
	}
	respond(w, http.StatusCreated, rule)
}

// UpdatePricingRule изменяет правило цены.
func (h *Handler) UpdatePricingRule(w http.ResponseWriter, r *http.Request) {
	var patch service.PricingRulePatch
	if !decode(w, r, &patch) {
		return
	}

	id := chi.URLParam(r, "id")
	rule, err := h.service.UpdatePricingRule(r.Context(), id, patch)
	if err != nil {
		h.fail(w, err, "update pricing rule", zap.String("ruleID", id))
		return
	}
	respond(w, http.StatusOK, rule)
}

// DeletePricingRule удаляет правило цены.
func (h *Handler) DeletePricingRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeletePricingRule(r.Context(), id); err != nil {
		h.fail(w, err, "delete pricing rule", zap.String("ruleID", id))
		return
	}
	respondMessage(w, http.StatusOK, "Pricing rule deleted")
}

// ListUsers возвращает пользователей, опционально отфильтрованных по роли.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var role *model.Role
	if v := r.URL.Query().Get("role"); v != "" {
		rv := model.Role(v)
		role = &rv
	}

	users, err := h.service.ListUsers(r.Context(), role)
	if err != nil {
		h.fail(w, err, "list users")
		return
	}
	respond(w, http.StatusOK, nonNil(users))
}

type userStatusRequest struct {
	IsVerified *bool `json:"isVerified" validate:"required"`
}

// SetUserStatus изменяет признак подтверждения пользователя.
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req userStatusRequest
	if !decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	u, err := h.service.SetUserVerified(r.Context(), id, *req.IsVerified)
	if err != nil {
		h.fail(w, err, "set user status", zap.String("userID", id))
		return
	}
	respond(w, http.StatusOK, u)
}

type userRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// SetUserRole изменяет роль пользователя.
func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if !decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	u, err := h.service.SetUserRole(r.Context(), id, model.Role(req.Role))
	if err != nil {
		h.fail(w, err, "set user role", zap.String("userID", id))
		return
	}
	respond(w, http.StatusOK, u)
}

type refundRequest struct {
	Amount      model.Money `json:"amount"`
	Description string      `json:"description"`
}

// RefundWallet зачисляет возврат на кошелёк пользователя.
func (h *Handler) RefundWallet(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "userId")
	res, err := h.service.RefundWallet(r.Context(), id, req.Amount, req.Description)
	if err != nil {
		h.fail(w, err, "refund wallet", zap.String("userID", id))
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"wallet":      res.Wallet,
		"transaction": res.Transaction,
	})
}

type walletStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE SUSPENDED"`
}

// SetWalletStatus приостанавливает или возобновляет кошелёк пользователя.
func (h *Handler) SetWalletStatus(w http.ResponseWriter, r *http.Request) {
	var req walletStatusRequest
	if !decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "userId")
	wallet, err := h.service.SetWalletStatus(r.Context(), id, model.WalletStatus(req.Status))
	if err != nil {
		h.fail(w, err, "set wallet status", zap.String("userID", id))
		return
	}
	respond(w, http.StatusOK, wallet)
}

// PendingPartners возвращает заявки партнёров на модерации.
func (h *Handler) PendingPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.service.PendingPartners(r.Context())
	if err != nil {
		h.fail(w, err, "list pending partners")
		return
	}
	respond(w, http.StatusOK, nonNil(partners))
}

// ApprovePartner одобряет заявку партнёра.
func (h *Handler) ApprovePartner(w http.ResponseWriter, r *http.Request) {
	h.reviewPartner(w, r, true)
}

// RejectPartner отклоняет заявку партнёра.
func (h *Handler) RejectPartner(w http.ResponseWriter, r *http.Request) {
	h.reviewPartner(w, r, false)
}

func (h *Handler) reviewPartner(w http.ResponseWriter, r *http.Request, approve bool) {
	id := chi.URLParam(r, "id")
	p, err := h.service.ReviewPartner(r.Context(), id, approve)
	if err != nil {
		h.fail(w, err, "review partner", zap.String("partnerID", id))
		return
	}
	respond(w, http.StatusOK, p)
}

// AnalyticsSummary возвращает сводные показатели.
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.AnalyticsSummary(r.Context())
	if err != nil {
		h.fail(w, err, "analytics summary")
		return
	}
	respond(w, http.StatusOK, summary)
}

// TopPartners возвращает рейтинг партнёров.
func (h *Handler) TopPartners(w http.ResponseWriter, r *http.Request) {
	top, err := h.service.TopPartners(r.Context())
	if err != nil {
		h.fail(w, err, "top partners")
		return
	}
	respond(w, http.StatusOK, nonNil(top))
}

type marketDataRequest struct {
	Type      string          `json:"type" validate:"required"`
	Source    string          `json:"source" validate:"required"`
	Category  *string         `json:"category"`
	Geography *string         `json:"geography"`
	Data      json.RawMessage `json:"data" validate:"required"`
}

// PublishMarketData сохраняет запись рыночных данных.
func (h *Handler) PublishMarketData(w http.ResponseWriter, r *http.Request) {
	var req marketDataRequest
	if !decode(w, r, &req) {
		return
	}

	kind := model.MarketDataType(req.Type)
	m, err := h.service.PublishMarketData(r.Context(), model.MarketData{
		Type:      kind,
		Source:    req.Source,
		Category:  req.Category,
		Geography: req.Geography,
		Data:      model.DecodeMarketPayload(kind, req.Data),
	})
	if err != nil {
		h.fail(w, err, "publish market data", zap.String("type", req.Type))
		return
	}
	respond(w, http.StatusCreated, m)
}
