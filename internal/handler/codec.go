package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(code)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// statusOf maps an error code to its HTTP status.
func statusOf(code string) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidState, apperr.CodeInsufficientStock:
		return http.StatusConflict
	case apperr.CodePayment:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the API error envelope. Errors without a
// domain code are logged and reported as internal_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(code)
		e.FieldStart("message")
		if status == http.StatusInternalServerError {
			e.Str("internal server error")
		} else {
			e.Str(err.Error())
		}

		var (
			validation *apperr.ValidationError
			stock      *apperr.InsufficientStockError
		)
		switch {
		case errors.As(err, &validation) && validation.Field != "":
			e.FieldStart("field")
			e.Str(validation.Field)
		case errors.As(err, &stock):
			e.FieldStart("productId")
			e.Str(stock.ProductID)
		}
		e.ObjEnd()
	})
}

// readBody reads and size-limits the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperr.ValidationError{Field: "body", Reason: "cannot read request body"}
	}
	return data, nil
}

func malformed(err error) error {
	var v *apperr.ValidationError
	if errors.As(err, &v) {
		return err
	}
	return &apperr.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
}

// decodeObject decodes a JSON object from data, calling field for each key.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	if len(data) == 0 {
		return &apperr.ValidationError{Field: "body", Reason: "is required"}
	}
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	})
	if err != nil {
		return malformed(err)
	}
	return nil
}

func isNull(d *jx.Decoder) (bool, error) {
	if d.Next() != jx.Null {
		return false, nil
	}
	return true, d.Null()
}

func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, apperr.Invalid(field, "must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Invalid(field, "must be a number")
	}
	return v, nil
}

func decodeTime(d *jx.Decoder, field string) (*time.Time, error) {
	if null, err := isNull(d); null || err != nil {
		return nil, err
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperr.Invalid(field, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.Format(time.RFC3339))
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.String())
}

func encodeOptionalStr(e *jx.Encoder, s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}

// pageParams reads the 1-based page and limit query parameters.
func pageParams(r *http.Request, defaultLimit int) (offset, limit int, err error) {
	q := r.URL.Query()
	page, limit := 1, defaultLimit
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, apperr.Invalid("page", "must be a positive integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > 100 {
			return 0, 0, apperr.Invalid("limit", "must be between 1 and 100")
		}
	}
	return (page - 1) * limit, limit, nil
}
