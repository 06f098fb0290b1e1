package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"waitlist/internal/credentials"
	"waitlist/internal/handler"
	"waitlist/internal/mailchimp"
	"waitlist/internal/metrics"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic("could not create logger: " + err.Error())
	}
	defer log.Sync()

	// Nothing scrapes a Lambda, so the collectors stay unregistered.
	h := handler.New(handler.Config{
		MarketingAPI: mailchimp.NewMarketingAPI(&http.Client{Timeout: timeout(log)}, mailchimp.DefaultEndpoint),
		Credentials:  credentialsSource(log),
		Logger:       log,
		Metrics:      metrics.New(nil),
	})

	lambda.Start(h.Subscribe)
}

// credentialsSource reads the API key from SSM when MAILCHIMP_API_KEY_PARAM is
// set. Failures fall back to the environment so requests still get a
// configuration error instead of the function failing to start.
func credentialsSource(log *zap.Logger) handler.CredentialsSource {
	name := os.Getenv(credentials.APIKeyParamEnv)
	if name == "" {
		return credentials.Env{}
	}

	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Error("configuration error", zap.Error(err))
		return credentials.Env{}
	}

	key, err := credentials.FetchAPIKey(context.TODO(), ssm.NewFromConfig(cfg), name)
	if err != nil {
		log.Error("could not get SSM parameter", zap.String("name", name), zap.Error(err))
		return credentials.Env{}
	}

	return credentials.CachedAPIKey{APIKey: key}
}

func timeout(log *zap.Logger) time.Duration {
	v := os.Getenv("MAILCHIMP_TIMEOUT")
	if v == "" {
		return mailchimp.DefaultTimeout
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn("invalid MAILCHIMP_TIMEOUT, using default", zap.String("value", v), zap.Duration("default", mailchimp.DefaultTimeout))
		return mailchimp.DefaultTimeout
	}
	return d
}
