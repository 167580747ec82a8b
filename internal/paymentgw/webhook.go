package paymentgw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/promo-storefront/internal/domain/payment"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Payment-Signature"

// DefaultTolerance is the accepted clock skew for webhook timestamps.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

// Webhook authenticates and decodes provider event deliveries.
type Webhook struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhook returns a Webhook that checks signatures made with secret.
func NewWebhook(secret string, tolerance time.Duration) *Webhook {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Webhook{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Sign returns a signature header value for payload at t. It mirrors the
// provider's scheme: "t=<unix>,v1=<hex hmac-sha256 of "<unix>.<payload>">".
func Sign(secret string, payload []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac([]byte(secret), ts, payload))
}

// Parse verifies header against payload and decodes the event. ok is false
// for event types that carry no payment outcome.
func (w *Webhook) Parse(payload []byte, header string) (payment.Event, bool, error) {
	if err := w.verify(payload, header); err != nil {
		return payment.Event{}, false, err
	}
	return ParseEvent(payload)
}

func (w *Webhook) verify(payload []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}

	var (
		ts         string
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig, err := hex.DecodeString(v)
			if err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if ts == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	skew := w.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > w.tolerance {
		return ErrStaleSignature
	}

	expected := mac(w.secret, ts, payload)
	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func mac(secret []byte, ts string, payload []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(ts))
	h.Write([]byte{'.'})
	h.Write(payload)
	return h.Sum(nil)
}

// ParseEvent decodes a provider event of the form
// {"id":...,"type":...,"data":{"object":{"id":...,"status":...}}}.
func ParseEvent(payload []byte) (payment.Event, bool, error) {
	var (
		ev     payment.Event
		typ    string
		object intent
	)
	err := jx.DecodeBytes(payload).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			ev.ID, err = d.Str()
		case "type":
			typ, err = d.Str()
		case "data":
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "object" {
					return d.Skip()
				}
				var err error
				object, err = decodeIntent(d)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return payment.Event{}, false, errors.Wrap(err, "decode event")
	}

	ev.Reference = object.ID
	switch typ {
	case "payment_intent.succeeded":
		ev.Status = payment.StatusSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		ev.Status = payment.StatusFailed
	default:
		return ev, false, nil
	}
	if ev.Reference == "" {
		return payment.Event{}, false, errors.New("event has no payment intent id")
	}
	return ev, true, nil
}
