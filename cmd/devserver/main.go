package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"waitlist/internal/credentials"
	"waitlist/internal/devserver"
	"waitlist/internal/handler"
	"waitlist/internal/mailchimp"
	"waitlist/internal/metrics"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic("could not create logger: " + err.Error())
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := handler.New(handler.Config{
		MarketingAPI: mailchimp.NewMarketingAPI(&http.Client{Timeout: mailchimp.DefaultTimeout}, mailchimp.DefaultEndpoint),
		Credentials:  credentials.Env{},
		Logger:       log,
		Metrics:      metrics.New(reg),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           devserver.NewMux(h.Subscribe, reg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("addr", server.Addr), zap.String("path", devserver.SubscribePath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
}
