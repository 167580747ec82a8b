package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/promo-storefront/internal/domain/order"
)

const defaultOrderPageSize = 20

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckout(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Checkout(r.Context(), req)
	respondOrder(w, r, http.StatusCreated, o, err)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	respondOrder(w, r, http.StatusOK, o, err)
}

func (h *Handler) guestOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListGuestByPhone(r.Context(), chi.URLParam(r, "phone"))
	respondOrders(w, r, orders, err)
}

func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByCustomer(r.Context(), chi.URLParam(r, "customerRef"))
	respondOrders(w, r, orders, err)
}

func (h *Handler) requestCancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RequestCancellation(r.Context(), chi.URLParam(r, "id"))
	respondOrder(w, r, http.StatusOK, o, err)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r, defaultOrderPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := order.ListFilter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		if f.Status, err = order.ParseStatus(s); err != nil {
			writeError(w, r, err)
			return
		}
	}

	orders, total, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
		e.FieldStart("total")
		e.Int(total)
		e.FieldStart("limit")
		e.Int(limit)
		e.FieldStart("offset")
		e.Int(offset)
		e.ObjEnd()
	})
}

func (h *Handler) countOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.orders.Count(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("count")
		e.Int64(n)
		e.ObjEnd()
	})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var raw string
	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := order.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), to)
	respondOrder(w, r, http.StatusOK, o, err)
}

func respondOrder(w http.ResponseWriter, r *http.Request, status int, o *order.Order, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func respondOrders(w http.ResponseWriter, r *http.Request, orders []order.Order, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerRef")
	encodeOptionalStr(e, o.CustomerRef)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int64(it.Quantity)
		e.FieldStart("unitPriceCharged")
		e.Int64(it.UnitPriceCharged)
		e.FieldStart("lineTotal")
		e.Int64(it.LineTotal())
		e.FieldStart("campaignRef")
		encodeOptionalStr(e, it.CampaignRef)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("delivery")
	encodeDelivery(e, &o.Delivery)
	e.FieldStart("deliveryCharge")
	e.Int64(o.DeliveryCharge)
	e.FieldStart("totalAmount")
	e.Int64(o.TotalAmount)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	if o.PaymentReference != "" {
		e.FieldStart("paymentReference")
		e.Str(o.PaymentReference)
	}
	e.FieldStart("estimatedDeliveryAt")
	encodeTime(e, o.EstimatedDeliveryAt)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeDelivery(e *jx.Encoder, d *order.DeliveryInfo) {
	e.ObjStart()
	e.FieldStart("name")
	e.Str(d.Name)
	e.FieldStart("phone")
	e.Str(d.Phone)
	e.FieldStart("district")
	e.Str(d.District)
	e.FieldStart("subDistrict")
	e.Str(d.SubDistrict)
	e.FieldStart("address")
	e.Str(d.Address)
	if d.PostalCode != "" {
		e.FieldStart("postalCode")
		e.Str(d.PostalCode)
	}
	e.ObjEnd()
}

// decodeCheckout reads a checkout request. Client-supplied prices and
// totals are skipped.
func decodeCheckout(w http.ResponseWriter, r *http.Request) (order.CheckoutRequest, error) {
	var req order.CheckoutRequest
	data, err := readBody(w, r)
	if err != nil {
		return req, err
	}

	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customerRef":
			var null bool
			if null, err = isNull(d); null || err != nil {
				return err
			}
			var ref string
			if ref, err = d.Str(); err == nil && ref != "" {
				req.CustomerRef = &ref
			}
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var it order.CheckoutItem
				err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "productId":
						it.ProductID, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int64()
					default:
						err = d.Skip()
					}
					return err
				})
				req.Items = append(req.Items, it)
				return err
			})
		case "delivery":
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "name":
					req.Delivery.Name, err = d.Str()
				case "phone":
					req.Delivery.Phone, err = d.Str()
				case "district":
					req.Delivery.District, err = d.Str()
				case "subDistrict":
					req.Delivery.SubDistrict, err = d.Str()
				case "address":
					req.Delivery.Address, err = d.Str()
				case "postalCode":
					req.Delivery.PostalCode, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "deliveryCharge":
			var null bool
			if null, err = isNull(d); null || err != nil {
				return err
			}
			var charge int64
			if charge, err = d.Int64(); err == nil {
				req.DeliveryCharge = &charge
			}
		case "paymentMethod":
			var m string
			m, err = d.Str()
			req.PaymentMethod = order.PaymentMethod(m)
		case "paymentReference":
			req.PaymentReference, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}
