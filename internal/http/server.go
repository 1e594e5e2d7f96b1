package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolffsoft/catalog-service/internal/config"
	"github.com/wolffsoft/catalog-service/internal/http/middleware"
	"github.com/wolffsoft/catalog-service/internal/metrics"
	"github.com/wolffsoft/catalog-service/internal/repository"
	"github.com/wolffsoft/catalog-service/internal/service/pricesync"
	"github.com/wolffsoft/catalog-service/internal/service/product"
	"github.com/wolffsoft/catalog-service/internal/service/search"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	productsRepo := repository.NewProductsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	inboxRepo := repository.NewInboxRepository(mysqlDB)

	// repos (ClickHouse)
	searchRepo := repository.NewSearchRepository(clickhouseDB)

	// services
	productSvc := product.New(mysqlDB, productsRepo, outboxRepo, nil)
	priceSyncSvc := pricesync.New(mysqlDB, productsRepo, inboxRepo, outboxRepo, nil)
	searchSvc := search.New(searchRepo, productsRepo, nil)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// products
	e.POST("/products", createProductHandler(productSvc))
	e.GET("/products/:id", getProductHandler(productSvc))
	e.PUT("/products/:id", updateProductHandler(productSvc))
	e.PATCH("/products/:id/price", updatePriceHandler(productSvc))
	e.DELETE("/products/:id", deleteProductHandler(productSvc))

	// external price integration, rate-limited per source
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:src:",
		Window:         time.Second,
		RetryAfterHint: true,
	})
	e.POST("/price-integration/prices", pushPriceHandler(priceSyncSvc), rlMW)

	// search projection
	e.GET("/search/products", searchProductsHandler(searchSvc))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
