package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/app"
	"github.com/imrishuroy/go-phone-storefront/internal/config"
	"github.com/imrishuroy/go-phone-storefront/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg := logger.MustNew(cfg.Stage, cfg.LogLevel)
	defer func() { _ = lg.Sync() }()

	if cfg.Stage == logger.ProdStage {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(context.Background(), cfg, lg)
	if err != nil {
		lg.Fatal("failed to init aws clients", zap.Error(err))
	}
	r := a.Router()

	// if RUN_LOCAL=true, run a local HTTP server for development.
	if cfg.RunLocal {
		lg.Info("running local server", zap.String("addr", cfg.HTTPAddr))
		if err := r.Run(cfg.HTTPAddr); err != nil {
			lg.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
