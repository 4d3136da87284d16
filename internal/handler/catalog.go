package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/pricing"
	"github.com/mmeshcher/apse-storefront/internal/service"
)

// ListCategories возвращает категории товаров.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.fail(w, err, "list categories")
		return
	}
	respond(w, http.StatusOK, nonNil(categories))
}

// ListProducts возвращает товары, опционально отфильтрованные по категории.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.fail(w, err, "list products")
		return
	}
	respond(w, http.StatusOK, nonNil(products))
}

// GetProduct возвращает товар.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get product", zap.Int64("productID", id))
		return
	}
	respond(w, http.StatusOK, p)
}

// ListServices возвращает услуги консалтинга по этапам.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.fail(w, err, "list services")
		return
	}
	respond(w, http.StatusOK, nonNil(services))
}

// GetService возвращает услугу с правилами цены.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc, err := h.service.GetService(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get service", zap.String("serviceID", id))
		return
	}
	respond(w, http.StatusOK, svc)
}

// CalculatePrice рассчитывает цену услуги по фильтрам.
func (h *Handler) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	var f pricing.Filters
	if r.ContentLength != 0 && !decode(w, r, &f) {
		return
	}

	id := chi.URLParam(r, "id")
	q, err := h.service.CalculatePrice(r.Context(), id, f)
	if err != nil {
		h.fail(w, err, "calculate price", zap.String("serviceID", id))
		return
	}
	respond(w, http.StatusOK, q)
}

type orderItemRequest struct {
	ProductID int64 `json:"productId" validate:"required"`
	Quantity  int   `json:"quantity" validate:"gte=1"`
}

type placeOrderRequest struct {
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	AddressID       string             `json:"addressId" validate:"omitempty,uuid"`
	ShippingAddress string             `json:"shippingAddress"`
}

// PlaceOrder оформляет заказ товаров текущего пользователя.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decode(w, r, &req) {
		return
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := h.service.PlaceOrder(r.Context(), uid, items, service.Delivery{
		AddressID: req.AddressID,
		Address:   req.ShippingAddress,
	})
	if err != nil {
		h.fail(w, err, "place order", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusCreated, order)
}

// GetOrders возвращает заказы текущего пользователя, при необходимости по статусу.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrders(r.Context(), uid, r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, err, "get orders", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusOK, nonNil(orders))
}

// GetOrder возвращает заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	order, err := h.service.GetOrder(r.Context(), uid, id)
	if err != nil {
		h.fail(w, err, "get order", zap.String("userID", uid), zap.String("orderID", id))
		return
	}
	respond(w, http.StatusOK, order)
}

// ListAddresses возвращает адресную книгу текущего пользователя.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	addresses, err := h.service.ListAddresses(r.Context(), uid)
	if err != nil {
		h.fail(w, err, "list addresses", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusOK, nonNil(addresses))
}

type addressRequest struct {
	FullName   string `json:"fullName" validate:"required"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	IsDefault  bool   `json:"isDefault"`
}

// AddAddress добавляет адрес текущему пользователю.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if !decode(w, r, &req) {
		return
	}

	a, err := h.service.AddAddress(r.Context(), uid, model.Address{
		FullName:   req.FullName,
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		h.fail(w, err, "add address", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusCreated, a)
}

// SetDefaultAddress делает адрес текущего пользователя адресом по умолчанию.
func (h *Handler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	a, err := h.service.SetDefaultAddress(r.Context(), uid, id)
	if err != nil {
		h.fail(w, err, "set default address", zap.String("userID", uid), zap.String("addressID", id))
		return
	}
	respond(w, http.StatusOK, a)
}

// nonNil заменяет nil-срез пустым, чтобы в JSON был [] вместо null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
