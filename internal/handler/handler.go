// Package handler exposes the campaign and order operations over HTTP. Routes
// are served by chi; request and response bodies are encoded with jx.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/promo-storefront/internal/domain/campaign"
	"github.com/xenking/promo-storefront/internal/domain/order"
	"github.com/xenking/promo-storefront/internal/domain/payment"
	"github.com/xenking/promo-storefront/pkg/httpmiddleware"
)

// WebhookParser authenticates and decodes a payment provider delivery.
// ok is false for events that carry no payment outcome.
type WebhookParser interface {
	Parse(payload []byte, signature string) (ev payment.Event, ok bool, err error)
}

// Handler serves the storefront API.
type Handler struct {
	campaigns *campaign.Service
	orders    *order.Service
	webhook   WebhookParser
	intents   payment.IntentCreator
}

// NewHandler constructs a Handler. webhook and intents may be nil, in which
// case the payment webhook and intent routes are not registered.
func NewHandler(
	campaigns *campaign.Service,
	orders *order.Service,
	webhook WebhookParser,
	intents payment.IntentCreator,
) *Handler {
	return &Handler{
		campaigns: campaigns,
		orders:    orders,
		webhook:   webhook,
		intents:   intents,
	}
}

// Mount registers every API route under /api. Admin routes require an API
// key from sec; checkout and payment intent creation are additionally
// wrapped in checkoutLimit when it is not nil.
func (h *Handler) Mount(r chi.Router, sec *Security, checkoutLimit httpmiddleware.Middleware) {
	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeStatus(w, http.StatusNotFound, "not_found", "no such route")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeStatus(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		})

		r.Get("/products/{id}/price", h.pricePreview)
		r.Get("/campaigns/active", h.activeCampaigns)

		r.Group(func(r chi.Router) {
			r.Use(sec.Require(ScopeCampaigns))
			r.Get("/campaigns", h.listCampaigns)
			r.Post("/campaigns", h.createCampaign)
			r.Post("/campaigns/sweep", h.sweepCampaigns)
			r.Get("/campaigns/products/available", h.availableProducts)
			r.Get("/campaigns/{id}", h.getCampaign)
			r.Put("/campaigns/{id}", h.editCampaign)
			r.Put("/campaigns/{id}/launch", h.launchCampaign)
			r.Put("/campaigns/{id}/stop", h.stopCampaign)
			r.Delete("/campaigns/{id}", h.deleteCampaign)
		})

		r.Group(func(r chi.Router) {
			if checkoutLimit != nil {
				r.Use(checkoutLimit)
			}
			r.Post("/orders/checkout", h.checkout)
			if h.intents != nil {
				r.Post("/payments/intents", h.createPaymentIntent)
			}
		})

		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/guest/{phone}", h.guestOrders)
		r.Get("/customers/{customerRef}/orders", h.customerOrders)
		r.Put("/orders/{id}/request-cancel", h.requestCancel)

		r.Group(func(r chi.Router) {
			r.Use(sec.Require(ScopeOrders))
			r.Get("/orders", h.listOrders)
			r.Get("/orders/count", h.countOrders)
			r.Put("/orders/{id}/status", h.updateOrderStatus)
		})

		if h.webhook != nil {
			r.Post("/payments/webhook", h.paymentWebhook)
		}
	})
}
