package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/wolffsoft/catalog-service/internal/model"
	"github.com/wolffsoft/catalog-service/internal/service/product"
)

type createProductReq struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PriceCents  int64             `json:"price_cents"`
	Currency    string            `json:"currency"`
	Attributes  map[string]string `json:"attributes"`
}

type updateProductReq struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Attributes  map[string]string `json:"attributes"`
}

type updatePriceReq struct {
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

type productResp struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	PriceCents     int64             `json:"price_cents"`
	Currency       string            `json:"currency"`
	Attributes     map[string]string `json:"attributes"`
	PriceUpdatedAt *time.Time        `json:"price_updated_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toProductResp(p *model.Product) productResp {
	return productResp{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		PriceCents:     p.PriceCents,
		Currency:       p.Currency,
		Attributes:     decodeAttributes(p.Attributes),
		PriceUpdatedAt: p.PriceUpdatedAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func decodeAttributes(raw string) map[string]string {
	attrs := map[string]string{}
	if raw == "" {
		return attrs
	}
	_ = json.Unmarshal([]byte(raw), &attrs)
	return attrs
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func createProductHandler(svc *product.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createProductReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "malformed request body")
		}

		req.Name = strings.TrimSpace(req.Name)
		req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

		if req.Name == "" {
			return badRequest(c, "name is required")
		}
		if req.PriceCents < 0 {
			return badRequest(c, "price_cents must be >= 0")
		}
		if !validCurrency(req.Currency) {
			return badRequest(c, "currency must be a 3-letter ISO code")
		}

		p, err := svc.Create(c.Request().Context(), product.CreateParams{
			Name:        req.Name,
			Description: req.Description,
			PriceCents:  req.PriceCents,
			Currency:    req.Currency,
			Attributes:  req.Attributes,
		})
		if err != nil {
			log.Errorf("create product failed: %v", err)
			return internalError(c, "create failed")
		}

		return c.JSON(http.StatusCreated, toProductResp(p))
	}
}

func getProductHandler(svc *product.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := svc.Get(c.Request().Context(), c.Param("id"))
		if errors.Is(err, product.ErrNotFound) {
			return notFound(c, "product not found")
		}
		if err != nil {
			log.Errorf("get product failed: %v", err)
			return internalError(c, "lookup failed")
		}
		return c.JSON(http.StatusOK, toProductResp(p))
	}
}

func updateProductHandler(svc *product.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req updateProductReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "malformed request body")
		}
		if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
			return badRequest(c, "name must not be blank")
		}

		p, err := svc.Update(c.Request().Context(), c.Param("id"), product.UpdateParams{
			Name:        req.Name,
			Description: req.Description,
			Attributes:  req.Attributes,
		})
		if errors.Is(err, product.ErrNotFound) {
			return notFound(c, "product not found")
		}
		if err != nil {
			log.Errorf("update product failed: %v", err)
			return internalError(c, "update failed")
		}
		return c.JSON(http.StatusOK, toProductResp(p))
	}
}

func updatePriceHandler(svc *product.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req updatePriceReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "malformed request body")
		}
		req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
		if req.PriceCents < 0 {
			return badRequest(c, "price_cents must be >= 0")
		}
		if !validCurrency(req.Currency) {
			return badRequest(c, "currency must be a 3-letter ISO code")
		}

		p, err := svc.UpdatePrice(c.Request().Context(), c.Param("id"), req.PriceCents, req.Currency)
		if errors.Is(err, product.ErrNotFound) {
			return notFound(c, "product not found")
		}
		if errors.Is(err, product.ErrCurrencyMismatch) {
			return badRequest(c, err.Error())
		}
		if err != nil {
			log.Errorf("update price failed: %v", err)
			return internalError(c, "update failed")
		}
		return c.JSON(http.StatusOK, toProductResp(p))
	}
}

func deleteProductHandler(svc *product.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := svc.Delete(c.Request().Context(), c.Param("id"))
		if errors.Is(err, product.ErrNotFound) {
			return notFound(c, "product not found")
		}
		if err != nil {
			log.Errorf("delete product failed: %v", err)
			return internalError(c, "delete failed")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
