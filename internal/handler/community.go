package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/repository"
	"github.com/mmeshcher/apse-storefront/internal/service"
)

// ListPartners возвращает одобренных партнёров по фильтрам type, country и specialty.
func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partners, err := h.service.ListPartners(r.Context(), repository.PartnerFilter{
		Type:      q.Get("type"),
		Country:   q.Get("country"),
		Specialty: q.Get("specialty"),
	})
	if err != nil {
		h.fail(w, err, "list partners")
		return
	}
	respond(w, http.StatusOK, nonNil(partners))
}

// GetPartner возвращает партнёра.
func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.service.GetPartner(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get partner", zap.String("partnerID", id))
		return
	}
	respond(w, http.StatusOK, p)
}

// SearchPartners подбирает партнёров по товару, направлению и виду деятельности.
func (h *Handler) SearchPartners(w http.ResponseWriter, r *http.Request) {
	var req service.PartnerSearch
	if !decode(w, r, &req) {
		return
	}

	matches, err := h.service.SearchPartners(r.Context(), req)
	if err != nil {
		h.fail(w, err, "search partners")
		return
	}
	respond(w, http.StatusOK, matches)
}

type registerPartnerRequest struct {
	CompanyName string       `json:"companyName" validate:"required"`
	Type        string       `json:"type" validate:"required,oneof=CHA SHIPPING DOCUMENTER LAB INSPECTOR BANK CONSULTANT"`
	Description *string      `json:"description"`
	Specialties []string     `json:"specialties"`
	Country     string       `json:"country" validate:"required"`
	City        *string      `json:"city"`
	BaseFee     *model.Money `json:"baseFee"`
}

// RegisterPartner принимает заявку партнёра от текущего пользователя.
func (h *Handler) RegisterPartner(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req registerPartnerRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.service.RegisterPartner(r.Context(), uid, model.Partner{
		CompanyName: req.CompanyName,
		Type:        model.PartnerType(req.Type),
		Description: req.Description,
		Specialties: req.Specialties,
		Country:     req.Country,
		City:        req.City,
		BaseFee:     req.BaseFee,
	})
	if err != nil {
		h.fail(w, err, "register partner", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusCreated, p)
}

type sendMessageRequest struct {
	ToUserID  *string `json:"toUserId"`
	PartnerID *string `json:"partnerId"`
	Subject   *string `json:"subject"`
	Body      string  `json:"body" validate:"required"`
	IsSupport bool    `json:"isSupport"`
}

// SendMessage отправляет сообщение от текущего пользователя.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.service.SendMessage(r.Context(), uid, model.Message{
		ToUserID:  req.ToUserID,
		PartnerID: req.PartnerID,
		Subject:   req.Subject,
		Body:      req.Body,
		IsSupport: req.IsSupport,
	})
	if err != nil {
		h.fail(w, err, "send message", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusCreated, m)
}

func (h *Handler) listMessages(box repository.MessageBox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}

		messages, err := h.service.ListMessages(r.Context(), uid, box)
		if err != nil {
			h.fail(w, err, "list messages", zap.String("userID", uid))
			return
		}
		respond(w, http.StatusOK, nonNil(messages))
	}
}

func (h *Handler) markMessage(status model.MessageStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		m, err := h.service.MarkMessage(r.Context(), uid, id, status)
		if err != nil {
			h.fail(w, err, "mark message", zap.String("userID", uid), zap.String("messageID", id))
			return
		}
		respond(w, http.StatusOK, m)
	}
}

// ListMarketData возвращает рыночные данные по фильтрам type, category и geography.
func (h *Handler) ListMarketData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := h.service.ListMarketData(r.Context(), repository.MarketFilter{
		Type:      model.MarketDataType(q.Get("type")),
		Category:  q.Get("category"),
		Geography: q.Get("geography"),
	})
	if err != nil {
		h.fail(w, err, "list market data")
		return
	}
	respond(w, http.StatusOK, nonNil(data))
}
