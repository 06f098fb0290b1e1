// Package credentials resolves the Mailchimp credentials used by the subscribe handler.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"waitlist/internal/mailchimp"
)

// Environment variable names.
const (
	APIKeyEnv      = "MAILCHIMP_API_KEY"
	AudienceIDEnv  = "MAILCHIMP_AUDIENCE_ID"
	APIKeyParamEnv = "MAILCHIMP_API_KEY_PARAM"
)

// Env reads credentials from the process environment on every call, so a
// change to the environment is seen by the next request.
type Env struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Credentials returns the current environment values. Missing values are
// returned empty; it never fails.
func (e Env) Credentials(ctx context.Context) (mailchimp.Credentials, error) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return mailchimp.Credentials{
		APIKey:     getenv(APIKeyEnv),
		AudienceID: getenv(AudienceIDEnv),
	}, nil
}

// Static serves credentials resolved ahead of time.
type Static mailchimp.Credentials

// Credentials returns s unchanged.
func (s Static) Credentials(ctx context.Context) (mailchimp.Credentials, error) {
	return mailchimp.Credentials(s), nil
}

// CachedAPIKey serves an API key resolved ahead of time and reads the audience
// id from the environment on every call.
type CachedAPIKey struct {
	APIKey string
	Env    Env
}

// Credentials returns the cached key with the current audience id.
func (c CachedAPIKey) Credentials(ctx context.Context) (mailchimp.Credentials, error) {
	creds, err := c.Env.Credentials(ctx)
	if err != nil {
		return mailchimp.Credentials{}, err
	}
	creds.APIKey = c.APIKey
	return creds, nil
}

// SSMGetParameterAPI allows reading a single SSM parameter.
type SSMGetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// FetchAPIKey reads the decrypted API key stored in the SSM parameter name.
func FetchAPIKey(ctx context.Context, api SSMGetParameterAPI, name string) (string, error) {
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: true,
	})
	if err != nil {
		return "", fmt.Errorf("could not get SSM parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("SSM parameter " + name + " has no value")
	}
	return *out.Parameter.Value, nil
}
