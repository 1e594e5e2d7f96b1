package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/wolffsoft/catalog-service/internal/service/search"
	"github.com/wolffsoft/catalog-service/internal/util"
)

type searchHit struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
}

func searchProductsHandler(svc *search.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := strings.TrimSpace(c.QueryParam("q"))
		if q == "" {
			return badRequest(c, "q is required")
		}

		limit := 20
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		page, err := svc.Search(c.Request().Context(), q, c.QueryParam("cursor"), limit)
		if errors.Is(err, util.ErrInvalidCursor) {
			return badRequest(c, "invalid cursor")
		}
		if err != nil {
			log.Errorf("search failed: %v", err)
			return internalError(c, "search failed")
		}

		hits := make([]searchHit, 0, len(page.Results))
		for _, doc := range page.Results {
			hits = append(hits, searchHit{
				ProductID:   doc.ProductID,
				Name:        doc.Name,
				Description: doc.Description,
				PriceCents:  doc.PriceCents,
				Currency:    doc.Currency,
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count":       len(hits),
			"results":     hits,
			"next_cursor": page.NextCursor,
		})
	}
}
