// Package metrics содержит счётчики Prometheus для платежей и расчётов.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Назначения заказов шлюза.
const (
	PurposeWalletLoad     = "wallet_load"
	PurposeServicePayment = "service_payment"
)

// Ветки расчёта за услугу.
const (
	BranchWallet  = "wallet"
	BranchGateway = "gateway"
)

// Collectors объединяет счётчики сервиса. Нулевой указатель допустим и ничего не считает.
type Collectors struct {
	registry      *prometheus.Registry
	gatewayOrders *prometheus.CounterVec
	verifications *prometheus.CounterVec
	settlements   *prometheus.CounterVec
}

// New создаёт счётчики и регистрирует их в собственном реестре.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		gatewayOrders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_gateway_orders_total",
				Help: "Number of payment gateway orders created",
			},
			[]string{"purpose"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_payment_verifications_total",
				Help: "Number of gateway payment verifications by result",
			},
			[]string{"purpose", "result"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_settlements_total",
				Help: "Number of service settlements by funding branch",
			},
			[]string{"branch"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		c.gatewayOrders,
		c.verifications,
		c.settlements,
	)
	return c
}

// GatewayOrderCreated учитывает созданный заказ шлюза.
func (c *Collectors) GatewayOrderCreated(purpose string) {
	if c == nil {
		return
	}
	c.gatewayOrders.WithLabelValues(purpose).Inc()
}

// PaymentVerified учитывает результат проверки платежа: ok, mismatch, replay или error.
func (c *Collectors) PaymentVerified(purpose, result string) {
	if c == nil {
		return
	}
	c.verifications.WithLabelValues(purpose, result).Inc()
}

// Settled учитывает проведённый расчёт за услугу.
func (c *Collectors) Settled(branch string) {
	if c == nil {
		return
	}
	c.settlements.WithLabelValues(branch).Inc()
}

// Handler отдаёт метрики в формате Prometheus.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
