// Package app wires configuration, AWS clients and services into the storefront.
package app

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/aws"
	"github.com/imrishuroy/go-phone-storefront/internal/catalog"
	"github.com/imrishuroy/go-phone-storefront/internal/checkout"
	"github.com/imrishuroy/go-phone-storefront/internal/config"
	"github.com/imrishuroy/go-phone-storefront/internal/discount"
	"github.com/imrishuroy/go-phone-storefront/internal/handlers"
	"github.com/imrishuroy/go-phone-storefront/internal/idempotency"
	"github.com/imrishuroy/go-phone-storefront/internal/inventory"
	"github.com/imrishuroy/go-phone-storefront/internal/notify"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
)

// App is the wired storefront core.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Catalog     *catalog.Store
	Ledger      *discount.Ledger
	Orders      *orders.Machine
	Checkout    *checkout.Service
	Idempotency *idempotency.Store
}

// Build wires every service over clients.
func Build(cfg config.Config, clients *aws.AWSClients, logger *zap.Logger) *App {
	cat := catalog.NewStore(clients.DynamoDB, cfg.ProductsTable)
	ledger := discount.NewLedger(discount.NewStore(clients.DynamoDB, cfg.DiscountsTable, cfg.UsageTable), logger)
	idem := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	machine := orders.NewMachine(
		orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		inventory.NewGuard(clients.DynamoDB, cfg.ProductsTable),
		ledger,
		Notifier(cfg, clients, logger),
		logger,
	)
	return &App{
		Config:      cfg,
		Logger:      logger,
		Catalog:     cat,
		Ledger:      ledger,
		Orders:      machine,
		Checkout:    checkout.NewService(cat, ledger, machine, idem, cfg.ShippingFee, logger),
		Idempotency: idem,
	}
}

// New loads AWS clients and builds the App.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	clients, err := aws.NewAWSClients(ctx, cfg.AWS())
	if err != nil {
		return nil, err
	}
	return Build(cfg, clients, logger), nil
}

// Notifier assembles the event sinks enabled by cfg. The log sink is always on.
func Notifier(cfg config.Config, clients *aws.AWSClients, logger *zap.Logger) orders.Notifier {
	sinks := notify.Fanout{notify.NewLogSink(logger)}
	if cfg.EventsQueueURL != "" {
		sinks = append(sinks, notify.NewSQSSink(aws.NewPublisher(clients.SQS, cfg.EventsQueueURL)))
	}
	if cfg.MetricsNamespace != "" {
		sinks = append(sinks, notify.NewMetricsSink(clients.CloudWatch, cfg.MetricsNamespace))
	}
	return sinks
}

// Router builds the gin engine with recovery, request logging and CORS.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.Logger), corsMiddleware(a.Config.CORSAllowedOrigins))

	handlers.RegisterRoutes(r, handlers.HandlerConfig{
		Checkout: a.Checkout,
		Orders:   a.Orders,
		Ledger:   a.Ledger,
		Logger:   a.Logger,
	})
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", handlers.UserHeader}
	corsConfig.ExposeHeaders = []string{"Location"}
	return cors.New(corsConfig)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}
