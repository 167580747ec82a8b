package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/promo-storefront/internal/domain/campaign"
)

const (
	defaultCampaignPageSize = 10
	defaultProductPageSize  = 20
)

func (h *Handler) pricePreview(w http.ResponseWriter, r *http.Request) {
	q, err := h.campaigns.PricePreview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(q.Product.ID)
		e.FieldStart("name")
		e.Str(q.Product.Name)
		e.FieldStart("basePrice")
		encodeDecimal(e, q.Product.BasePrice)
		e.FieldStart("standingDiscountPercent")
		encodeDecimal(e, q.Product.StandingPercent())
		e.FieldStart("regularPrice")
		e.Int64(q.Product.RegularPrice())
		e.FieldStart("finalPrice")
		e.Int64(q.UnitPrice)
		e.FieldStart("stockCount")
		e.Int64(q.Product.StockCount)
		e.FieldStart("campaign")
		if res := q.Resolution; res != nil {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(res.Campaign.ID)
			e.FieldStart("name")
			e.Str(res.Campaign.Name)
			e.FieldStart("bannerRef")
			e.Str(res.Campaign.BannerRef)
			e.FieldStart("extraDiscountPercent")
			encodeDecimal(e, res.ExtraDiscountPercent())
			e.FieldStart("endTime")
			encodeTime(e, res.Campaign.EndTime)
			e.ObjEnd()
		} else {
			e.Null()
		}
		e.FieldStart("quotedAt")
		encodeTime(e, q.QuotedAt)
		e.ObjEnd()
	})
}

func (h *Handler) activeCampaigns(w http.ResponseWriter, r *http.Request) {
	showcases, err := h.campaigns.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, sc := range showcases {
			e.ObjStart()
			e.FieldStart("campaign")
			encodeCampaign(e, &sc.Campaign, false)
			e.FieldStart("products")
			e.ArrStart()
			for _, p := range sc.Products {
				e.ObjStart()
				e.FieldStart("id")
				e.Str(p.Product.ID)
				e.FieldStart("name")
				e.Str(p.Product.Name)
				e.FieldStart("regularPrice")
				e.Int64(p.RegularPrice)
				e.FieldStart("finalPrice")
				e.Int64(p.FinalPrice)
				e.FieldStart("stockCount")
				e.Int64(p.Product.StockCount)
				e.ObjEnd()
			}
			e.ArrEnd()
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

func (h *Handler) listCampaigns(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r, defaultCampaignPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := campaign.ListFilter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		if f.Status, err = campaign.ParseStatus(s); err != nil {
			writeError(w, r, err)
			return
		}
	}

	page, err := h.campaigns.ListByStatus(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("campaigns")
		e.ArrStart()
		for i := range page.Campaigns {
			encodeCampaign(e, &page.Campaigns[i], true)
		}
		e.ArrEnd()
		e.FieldStart("total")
		e.Int(page.Total)
		e.FieldStart("limit")
		e.Int(limit)
		e.FieldStart("offset")
		e.Int(offset)
		e.ObjEnd()
	})
}

func (h *Handler) availableProducts(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r, defaultProductPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.campaigns.AvailableProducts(r.Context(), campaign.ProductQuery{
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		e.ArrStart()
		for _, p := range page.Products {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(p.Product.ID)
			e.FieldStart("name")
			e.Str(p.Product.Name)
			e.FieldStart("basePrice")
			encodeDecimal(e, p.Product.BasePrice)
			e.FieldStart("standingDiscountPercent")
			encodeDecimal(e, p.Product.StandingPercent())
			e.FieldStart("regularPrice")
			e.Int64(p.RegularPrice)
			e.FieldStart("finalPrice")
			e.Int64(p.FinalPrice)
			e.FieldStart("stockCount")
			e.Int64(p.Product.StockCount)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("total")
		e.Int(page.Total)
		e.FieldStart("limit")
		e.Int(limit)
		e.FieldStart("offset")
		e.Int(offset)
		e.ObjEnd()
	})
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	h.respondCampaign(w, r, http.StatusOK, c, err)
}

func (h *Handler) createCampaign(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCampaignInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.campaigns.Create(r.Context(), in)
	h.respondCampaign(w, r, http.StatusCreated, c, err)
}

func (h *Handler) editCampaign(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCampaignInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.campaigns.Edit(r.Context(), chi.URLParam(r, "id"), in)
	h.respondCampaign(w, r, http.StatusOK, c, err)
}

func (h *Handler) launchCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Launch(r.Context(), chi.URLParam(r, "id"))
	h.respondCampaign(w, r, http.StatusOK, c, err)
}

func (h *Handler) stopCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Stop(r.Context(), chi.URLParam(r, "id"))
	h.respondCampaign(w, r, http.StatusOK, c, err)
}

func (h *Handler) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sweepCampaigns(w http.ResponseWriter, r *http.Request) {
	n, err := h.campaigns.SweepExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("stopped")
		e.Int(n)
		e.ObjEnd()
	})
}

func (h *Handler) respondCampaign(w http.ResponseWriter, r *http.Request, status int, c *campaign.Campaign, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeCampaign(e, c, true)
	})
}

func encodeCampaign(e *jx.Encoder, c *campaign.Campaign, withItems bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("bannerRef")
	e.Str(c.BannerRef)
	e.FieldStart("extraDiscountPercent")
	encodeDecimal(e, c.ExtraDiscountPercent)
	e.FieldStart("status")
	e.Str(string(c.Status))
	e.FieldStart("startTime")
	encodeTime(e, c.StartTime)
	e.FieldStart("endTime")
	encodeTime(e, c.EndTime)
	if withItems {
		e.FieldStart("lineItems")
		e.ArrStart()
		for _, li := range c.LineItems {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(li.ProductID)
			e.FieldStart("capturedBasePrice")
			encodeDecimal(e, li.CapturedBasePrice)
			e.FieldStart("capturedStandingDiscountPercent")
			encodeDecimal(e, li.CapturedStandingDiscountPercent)
			e.FieldStart("capturedExtraDiscountPercent")
			encodeDecimal(e, li.CapturedExtraDiscountPercent)
			e.FieldStart("computedFinalPrice")
			e.Int64(li.ComputedFinalPrice())
			e.FieldStart("includedInCampaign")
			e.Bool(li.IncludedInCampaign)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.FieldStart("version")
	e.Int64(c.Version)
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, c.UpdatedAt)
	e.ObjEnd()
}

func decodeCampaignInput(w http.ResponseWriter, r *http.Request) (campaign.Input, error) {
	var in campaign.Input
	data, err := readBody(w, r)
	if err != nil {
		return in, err
	}

	err = decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			in.Name, err = d.Str()
		case "bannerRef":
			in.BannerRef, err = d.Str()
		case "extraDiscountPercent":
			in.ExtraDiscountPercent, err = decodeDecimal(d, key)
		case "status":
			var s string
			if s, err = d.Str(); err == nil && s != "" {
				in.Status, err = campaign.ParseStatus(s)
			}
		case "startTime":
			in.StartTime, err = decodeTime(d, key)
		case "endTime":
			in.EndTime, err = decodeTime(d, key)
		case "products":
			err = d.Arr(func(d *jx.Decoder) error {
				var sel campaign.Selection
				err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "productId":
						sel.ProductID, err = d.Str()
					case "excluded":
						sel.Excluded, err = d.Bool()
					case "includedInCampaign":
						var included bool
						included, err = d.Bool()
						sel.Excluded = !included
					default:
						err = d.Skip()
					}
					return err
				})
				in.Products = append(in.Products, sel)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return in, err
}
