package restservice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pco-network/pco/internal/config"
	"github.com/pco-network/pco/internal/core/application"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

type service struct {
	config       Config
	appConfig    *config.Config
	server       *http.Server
	otelShutdown func(context.Context) error
}

func NewService(svcConfig Config, appConfig *config.Config) (*service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{config: svcConfig, appConfig: appConfig}, nil
}

func (s *service) Start() error {
	if s.config.OtelCollectorEndpoint != "" {
		otelShutdown, err := initOpenTelemetry(
			context.Background(), s.config.OtelCollectorEndpoint,
		)
		if err != nil {
			return err
		}
		s.otelShutdown = otelShutdown
	}

	appSvc, err := s.appConfig.AppService()
	if err != nil {
		return err
	}

	router, err := newRouter(appSvc)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Addr:              s.config.address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := appSvc.Start(); err != nil {
		return fmt.Errorf("failed to start app service: %s", err)
	}
	log.Info("started app service")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server stopped unexpectedly")
		}
	}()
	log.Infof("started listening at %s", s.config.address())

	return nil
}

func (s *service) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// nolint:all
		s.server.Shutdown(ctx)
		log.Info("stopped http server")
	}

	appSvc, _ := s.appConfig.AppService()
	if appSvc != nil {
		appSvc.Stop()
		log.Info("stopped app service")
	}

	if s.otelShutdown != nil {
		if err := s.otelShutdown(context.Background()); err != nil {
			log.Errorf("failed to shutdown otel: %s", err)
		}
	}
}

func newRouter(appSvc application.Service) (*gin.Engine, error) {
	metrics, err := metricsMiddleware()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), tracingMiddleware(), metrics)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	newHandler(appSvc).register(router.Group("/v1"))
	return router, nil
}
