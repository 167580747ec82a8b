package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/paymentgw"
)

const maxWebhookBytes = 64 << 10

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "validation_error", "cannot read request body")
		return
	}

	lg := zctx.From(r.Context())
	ev, ok, err := h.webhook.Parse(payload, r.Header.Get(paymentgw.SignatureHeader))
	switch {
	case errors.Is(err, paymentgw.ErrMissingSignature),
		errors.Is(err, paymentgw.ErrInvalidSignature),
		errors.Is(err, paymentgw.ErrStaleSignature):
		lg.Warn("Rejected payment webhook", zap.Error(err))
		writeStatus(w, http.StatusUnauthorized, "unauthorized", "invalid webhook signature")
		return
	case err != nil:
		writeStatus(w, http.StatusBadRequest, "validation_error", "malformed payment event")
		return
	}
	if !ok {
		writeReceived(w, "")
		return
	}

	o, err := h.orders.ApplyPaymentEvent(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lg.Info("Payment event applied",
		zap.String("event_id", ev.ID),
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
	)
	writeReceived(w, string(o.Status))
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var amount *int64
	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "amount" {
			return d.Skip()
		}
		v, err := d.Int64()
		amount = &v
		return err
	})
	switch {
	case err != nil:
		writeError(w, r, err)
		return
	case amount == nil:
		writeError(w, r, apperr.Missing("amount"))
		return
	case *amount <= 0:
		writeError(w, r, apperr.Invalid("amount", "must be positive, got %d", *amount))
		return
	}

	in, err := h.intents.CreateIntent(r.Context(), *amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Payment intent created",
		zap.String("payment_intent_id", in.ID),
		zap.Int64("amount", *amount),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("paymentIntentId")
		e.Str(in.ID)
		e.FieldStart("clientSecret")
		e.Str(in.ClientSecret)
		e.ObjEnd()
	})
}

func writeReceived(w http.ResponseWriter, orderStatus string) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("received")
		e.Bool(true)
		if orderStatus != "" {
			e.FieldStart("orderStatus")
			e.Str(orderStatus)
		}
		e.ObjEnd()
	})
}
