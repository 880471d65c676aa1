package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	routes "campaign-orchestrator/internal/app/http"
	"campaign-orchestrator/internal/app/http/middleware"
	"campaign-orchestrator/internal/domain/campaigns"
	"campaign-orchestrator/internal/domain/users"
	"campaign-orchestrator/internal/infra/blobstore"
	"campaign-orchestrator/internal/infra/callbackauth"
	"campaign-orchestrator/internal/infra/events"
	"campaign-orchestrator/internal/infra/inference"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownGrace = 15 * time.Second

func newService(db *gorm.DB, gw campaigns.Gateway, pub events.Publisher) (*campaigns.Service, error) {
	blobs, err := blobstore.NewLocalStore(cfg.BlobRoot, cfg.BlobPublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	return campaigns.NewService(campaigns.Deps{
		DB:           db,
		Users:        users.NewGormDirectory(db),
		Blobs:        blobs,
		Gateway:      gw,
		Events:       pub,
		Logger:       logger,
		BuildTimeout: cfg.BuildTimeout,
	}), nil
}

func newGateway(ctx context.Context) *inference.Gateway {
	opts := inference.Options{
		BaseURL:       cfg.Inference.BaseURL,
		ProbeTimeout:  cfg.Inference.ProbeTimeout,
		UploadTimeout: cfg.Inference.UploadTimeout,
		Cooldown:      cfg.Inference.Cooldown,
		Logger:        logger,
	}
	if cfg.Inference.TokenURL != "" {
		opts.HTTPClient = inference.ClientCredentialsHTTPClient(ctx,
			cfg.Inference.TokenURL, cfg.Inference.ClientID, cfg.Inference.ClientSecret)
	}
	if cfg.Inference.BaseURL == "" {
		logger.Warn("INFERENCE_BASE_URL not set; builds and merges will be refused")
	}
	return inference.New(opts)
}

func newPublisher() (events.Publisher, func()) {
	if cfg.AMQPURL == "" {
		return events.Nop{}, func() {}
	}
	pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Warn("event broker unavailable, events disabled", zap.Error(err))
		return events.Nop{}, func() {}
	}
	return pub, func() { _ = pub.Close() }
}

func newVerifier(ctx context.Context) (callbackauth.Verifier, error) {
	if cfg.Callback.OIDCIssuer != "" {
		return callbackauth.NewOIDCVerifier(ctx, cfg.Callback.OIDCIssuer, cfg.Callback.OIDCAudience)
	}
	return callbackauth.NewHMACVerifier(cfg.Callback.Secret), nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(db)

	verifier, err := newVerifier(ctx)
	if err != nil {
		return err
	}
	pub, closePub := newPublisher()
	defer closePub()

	gw := newGateway(ctx)
	svc, err := newService(db, gw, pub)
	if err != nil {
		return err
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Service:   svc,
		Gateway:   gw,
		Callbacks: verifier,
		JWTSecret: cfg.JWTSecret,
		BlobRoot:  cfg.BlobRoot,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		runSweeper(gctx, svc, cfg.BuildSweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runSweeper(ctx context.Context, svc *campaigns.Service, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.SweepStaleBuilds(ctx)
			if err != nil {
				logger.Error("build sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("reclaimed stale builds", zap.Int("count", n))
			}
		}
	}
}
