package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/wolffsoft/catalog-service/internal/service/pricesync"
)

type priceSyncReq struct {
	RequestID   string    `json:"request_id"`
	ProductID   string    `json:"product_id"`
	PriceCents  *int64    `json:"price_cents"`
	Currency    string    `json:"currency"`
	EffectiveAt time.Time `json:"effective_at"`
	Source      string    `json:"source"`
}

type priceSyncResp struct {
	ProductID string      `json:"product_id"`
	RequestID string      `json:"request_id"`
	Result    string      `json:"result"` // applied | duplicate | skipped_out_of_order
	Product   productResp `json:"product"`
}

// pushPriceHandler is the external price-integration entrypoint. The partner
// system may deliver the same request twice or out of order; the service
// absorbs both and the result field says which case this call hit.
func pushPriceHandler(svc *pricesync.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req priceSyncReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "malformed request body")
		}

		req.RequestID = strings.TrimSpace(req.RequestID)
		req.ProductID = strings.TrimSpace(req.ProductID)
		req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

		if req.RequestID == "" {
			return badRequest(c, "request_id is required")
		}
		if req.ProductID == "" {
			return badRequest(c, "product_id is required")
		}
		if req.PriceCents == nil || *req.PriceCents < 0 {
			return badRequest(c, "price_cents must be present and >= 0")
		}
		if !validCurrency(req.Currency) {
			return badRequest(c, "currency must be a 3-letter ISO code")
		}
		if req.EffectiveAt.IsZero() {
			return badRequest(c, "effective_at is required")
		}

		res, err := svc.SyncPrice(c.Request().Context(), pricesync.SyncRequest{
			RequestID:   req.RequestID,
			ProductID:   req.ProductID,
			PriceCents:  *req.PriceCents,
			Currency:    req.Currency,
			EffectiveAt: req.EffectiveAt,
			Source:      req.Source,
		})
		if errors.Is(err, pricesync.ErrProductNotFound) {
			return notFound(c, "product not found")
		}
		if errors.Is(err, pricesync.ErrCurrencyMismatch) {
			return badRequest(c, err.Error())
		}
		if err != nil {
			log.Errorf("price sync failed: %v", err)
			return internalError(c, "price sync failed")
		}

		return c.JSON(http.StatusOK, priceSyncResp{
			ProductID: res.Product.ID,
			RequestID: req.RequestID,
			Result:    string(res.Outcome),
			Product:   toProductResp(&res.Product),
		})
	}
}
