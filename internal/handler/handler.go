// Package handler provides the Lambda function implementation.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"waitlist/internal/credentials"
	"waitlist/internal/mailchimp"
	"waitlist/internal/metrics"
	"waitlist/types"
)

// MailchimpAddMemberAPI allows adding an email address to a Mailchimp audience.
type MailchimpAddMemberAPI interface {
	AddListMember(ctx context.Context, creds mailchimp.Credentials, email string) (*mailchimp.Member, error)
}

// CredentialsSource supplies the Mailchimp credentials for a single request.
type CredentialsSource interface {
	Credentials(ctx context.Context) (mailchimp.Credentials, error)
}

// Handler subscribes the email addresses posted to it to a Mailchimp audience.
type Handler struct {
	api     MailchimpAddMemberAPI
	creds   CredentialsSource
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Config provides configuration options for a Handler. Logger and Metrics are optional.
type Config struct {
	MarketingAPI MailchimpAddMemberAPI
	Credentials  CredentialsSource
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// New creates a new Handler instance.
func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		api:     cfg.MarketingAPI,
		creds:   cfg.Credentials,
		log:     log,
		metrics: cfg.Metrics,
	}
}

// Messages returned to the caller.
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgEmailRequired    = "Email is required"
	MsgInvalidFormat    = "Invalid email format"
	MsgConfigError      = "Server configuration error"
	MsgInternalError    = "Internal server error"
	MsgSubscribed       = "Successfully subscribed!"
	MsgAlreadyMember    = "This email is already subscribed to our waitlist!"
	MsgInvalidAddress   = "Invalid email address"
	MsgSubscribeFailed  = "Subscription failed"
)

// addrPart matches one run of characters that are neither '@' nor whitespace.
// Whitespace includes \v, the Unicode space separators, the line and paragraph
// separators and the byte order mark, which \s alone does not cover.
const addrPart = `[^\s\x{0B}\x{A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}\x{FEFF}@]+`

var emailRegexp = regexp.MustCompile(`^` + addrPart + `@` + addrPart + `\.` + addrPart + `$`)

var (
	errEmailRequired = errors.New(MsgEmailRequired)
	errInvalidFormat = errors.New(MsgInvalidFormat)
)

// Subscribe handles one request to the subscribe endpoint. The returned error
// is always nil; failures are reported in the response body.
func (h *Handler) Subscribe(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RequestContext.HTTP.Method {
	case http.MethodOptions:
		h.metrics.IncRequest(metrics.OutcomePreflight)
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Headers: headers(false)}, nil
	case http.MethodPost:
	default:
		h.metrics.IncRequest(metrics.OutcomeBadMethod)
		return response(http.StatusMethodNotAllowed, types.SubscriptionResult{Error: MsgMethodNotAllowed}), nil
	}

	email, err := emailFromBody(req)
	if err != nil {
		h.metrics.IncRequest(metrics.OutcomeInvalidInput)
		return response(http.StatusBadRequest, types.SubscriptionResult{Error: err.Error()}), nil
	}

	creds, err := h.creds.Credentials(ctx)
	if err != nil {
		h.log.Error("could not resolve Mailchimp credentials", zap.Error(err))
		h.metrics.IncRequest(metrics.OutcomeConfigError)
		return response(http.StatusInternalServerError, types.SubscriptionResult{Error: MsgConfigError}), nil
	}
	if missing := missingCredentials(creds); len(missing) != 0 {
		h.log.Error("missing environment variables", zap.Strings("missing", missing))
		h.metrics.IncRequest(metrics.OutcomeConfigError)
		return response(http.StatusInternalServerError, types.SubscriptionResult{Error: MsgConfigError}), nil
	}

	start := time.Now()
	_, err = h.api.AddListMember(ctx, creds, email)
	elapsed := time.Since(start)
	if err != nil {
		var rejected *mailchimp.ErrorResponse
		if errors.As(err, &rejected) {
			h.log.Error("Mailchimp error",
				zap.Int("status", rejected.StatusCode),
				zap.String("provider_title", rejected.Title),
				zap.String("provider_body", rejected.Raw),
			)
			h.metrics.ObserveProvider(metrics.OutcomeRejected, elapsed)
			h.metrics.IncRequest(metrics.OutcomeRejected)
			return response(http.StatusBadRequest, failure(RejectionMessage(rejected))), nil
		}

		h.log.Error("server error", zap.Error(err))
		h.metrics.ObserveProvider(metrics.OutcomeProviderError, elapsed)
		h.metrics.IncRequest(metrics.OutcomeProviderError)
		return response(http.StatusInternalServerError, failure(MsgInternalError)), nil
	}

	h.metrics.ObserveProvider(metrics.OutcomeSubscribed, elapsed)
	h.metrics.IncRequest(metrics.OutcomeSubscribed)
	success := true
	return response(http.StatusOK, types.SubscriptionResult{Success: &success, Message: MsgSubscribed}), nil
}

// RejectionMessage maps a Mailchimp error reply to the message shown to the caller.
func RejectionMessage(e *mailchimp.ErrorResponse) string {
	switch {
	case e.Title == mailchimp.TitleMemberExists:
		return MsgAlreadyMember
	case e.Title == mailchimp.TitleInvalidResource:
		return MsgInvalidAddress
	case e.Detail != "":
		return e.Detail
	default:
		return MsgSubscribeFailed
	}
}

// ValidEmail reports whether email has the local@domain.tld shape accepted by the endpoint.
func ValidEmail(email string) bool {
	return emailRegexp.MatchString(email)
}

// emailFromBody extracts and validates the email field of a JSON request body.
// A body that is not a JSON object is treated as having no email.
func emailFromBody(req events.APIGatewayV2HTTPRequest) (string, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return "", errEmailRequired
		}
		body = b
	}

	// Keys are matched exactly; "Email" or "EMAIL" is not the email field.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", errEmailRequired
	}
	raw, ok := fields["email"]
	if !ok {
		return "", errEmailRequired
	}
	var email interface{}
	if err := json.Unmarshal(raw, &email); err != nil {
		return "", errEmailRequired
	}

	switch v := email.(type) {
	case nil:
		return "", errEmailRequired
	case string:
		if v == "" {
			return "", errEmailRequired
		}
		if !ValidEmail(v) {
			return "", errInvalidFormat
		}
		return v, nil
	case bool:
		if !v {
			return "", errEmailRequired
		}
	case float64:
		if v == 0 {
			return "", errEmailRequired
		}
	}
	// Numbers, objects and arrays can never look like an address.
	return "", errInvalidFormat
}

func missingCredentials(c mailchimp.Credentials) []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, credentials.APIKeyEnv)
	}
	if c.AudienceID == "" {
		missing = append(missing, credentials.AudienceIDEnv)
	}
	return missing
}

func failure(msg string) types.SubscriptionResult {
	success := false
	return types.SubscriptionResult{Success: &success, Error: msg}
}

func headers(withJSON bool) map[string]string {
	h := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	}
	if withJSON {
		h["Content-Type"] = "application/json"
	}
	return h
}

func response(status int, body types.SubscriptionResult) events.APIGatewayV2HTTPResponse {
	// SubscriptionResult only holds strings and a bool, so Marshal cannot fail.
	b, _ := json.Marshal(body)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    headers(true),
		Body:       string(b),
	}
}
