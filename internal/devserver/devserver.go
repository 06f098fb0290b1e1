// Package devserver serves a Lambda HTTP handler over net/http for local use.
package devserver

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SubscribePath is the route the waitlist form posts to.
const SubscribePath = "/api/subscriber"

// maxBodyBytes caps request bodies, matching the API Gateway payload limit.
const maxBodyBytes = 10 << 20

// LambdaHTTPFunc is an API Gateway HTTP API (payload v2) Lambda handler.
type LambdaHTTPFunc func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// NewMux routes SubscribePath to fn and exposes the metrics in gatherer and a
// health check.
func NewMux(fn LambdaHTTPFunc, gatherer prometheus.Gatherer, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(SubscribePath, Adapt(fn, log))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Adapt converts each net/http request into the event API Gateway would
// deliver and writes the Lambda response back.
func Adapt(fn LambdaHTTPFunc, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := toEvent(w, r)
		if err != nil {
			log.Warn("could not read request body", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		res, err := fn(r.Context(), req)
		if err != nil {
			// API Gateway answers 502 when the function fails.
			log.Error("handler returned error", zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		for k, v := range res.Headers {
			w.Header().Set(k, v)
		}
		status := res.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)

		body := []byte(res.Body)
		if res.IsBase64Encoded {
			if body, err = base64.StdEncoding.DecodeString(res.Body); err != nil {
				log.Error("could not decode response body", zap.Error(err))
				return
			}
		}
		if _, err := w.Write(body); err != nil {
			log.Warn("could not write response", zap.Error(err))
		}
	})
}

func toEvent(w http.ResponseWriter, r *http.Request) (events.APIGatewayV2HTTPRequest, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return events.APIGatewayV2HTTPRequest{}, err
	}

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ",")
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		query[k] = strings.Join(v, ",")
	}

	req := events.APIGatewayV2HTTPRequest{
		RawPath:               r.URL.Path,
		RawQueryString:        r.URL.RawQuery,
		Headers:               headers,
		QueryStringParameters: query,
	}
	req.RequestContext.HTTP.Method = r.Method
	req.RequestContext.HTTP.Path = r.URL.Path
	req.RequestContext.HTTP.SourceIP = r.RemoteAddr
	req.RequestContext.HTTP.UserAgent = r.UserAgent()

	if utf8.Valid(b) {
		req.Body = string(b)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(b)
		req.IsBase64Encoded = true
	}
	return req, nil
}
