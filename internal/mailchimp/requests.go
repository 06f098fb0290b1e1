// Package mailchimp provides methods to add subscribers to a Mailchimp audience
// through the Marketing API.
package mailchimp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the list members endpoint of the Marketing API. It takes
// the datacenter tag and the audience id, in that order.
const DefaultEndpoint = "https://%s.api.mailchimp.com/3.0/lists/%s/members"

// DefaultTimeout bounds a single call when no other timeout is configured.
const DefaultTimeout = 10 * time.Second

// StatusSubscribed is the member status requested for every new address.
const StatusSubscribed = "subscribed"

// Credentials identifies the account and audience a member is added to.
type Credentials struct {
	APIKey     string
	AudienceID string
}

// Datacenter returns the tag after the first '-' of the API key, e.g. "us6" for
// "0123abcd-us6". It returns an empty string when the key has no such segment.
func (c Credentials) Datacenter() string {
	parts := strings.Split(c.APIKey, "-")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// MarketingAPI adds members to Mailchimp audiences.
type MarketingAPI struct {
	client *http.Client

	// A format string that takes 2 string arguments for the datacenter and audience id.
	endpoint string
}

// NewMarketingAPI initializes a new instance of MarketingAPI. A nil client
// uses http.DefaultClient.
func NewMarketingAPI(client *http.Client, endpoint string) *MarketingAPI {
	if client == nil {
		client = http.DefaultClient
	}
	return &MarketingAPI{client, endpoint}
}

type addMemberRequest struct {
	EmailAddress string `json:"email_address"`
	Status       string `json:"status"`
}

// AddListMember subscribes email to the audience in creds. A non-2xx reply is
// returned as an *ErrorResponse; any other error means the request could not be
// completed or its reply could not be decoded.
func (api *MarketingAPI) AddListMember(ctx context.Context, creds Credentials, email string) (*Member, error) {
	b, err := json.Marshal(addMemberRequest{EmailAddress: email, Status: StatusSubscribed})
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}

	url := fmt.Sprintf(api.endpoint, creds.Datacenter(), creds.AudienceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", basicAuth(creds.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not POST Mailchimp API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read API response: %w", err)
	}

	// The reply must be JSON whatever the status: a reply that is not JSON is a
	// failed call, not a rejection.
	if !json.Valid(body) {
		return nil, fmt.Errorf("could not unmarshal API response %d: invalid JSON", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	// Member fields are informational; a 2xx reply of any JSON shape is a success.
	var data Member
	_ = json.Unmarshal(body, &data)
	return &data, nil
}

// parseErrorResponse reads the problem document of a non-2xx reply. Fields of
// an unexpected type are left empty. A null document cannot be read at all and
// is returned as a plain error.
func parseErrorResponse(status int, body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("could not unmarshal error response %d: %w", status, err)
	}
	if doc == nil {
		return fmt.Errorf("error response %d from Mailchimp API has a null body", status)
	}

	e := &ErrorResponse{StatusCode: status, Raw: string(body)}
	fields, ok := doc.(map[string]interface{})
	if !ok {
		return e
	}
	e.Type, _ = fields["type"].(string)
	e.Title, _ = fields["title"].(string)
	e.Instance, _ = fields["instance"].(string)
	if n, ok := fields["status"].(float64); ok {
		e.Status = int(n)
	}
	e.Detail = detailText(fields["detail"])
	return e
}

// detailText renders detail for display. Strings are used as they are, other
// non-empty values as their JSON text; null, false, 0 and "" give "".
func detailText(v interface{}) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case bool:
		if !d {
			return ""
		}
	case float64:
		if d == 0 {
			return ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Mailchimp accepts any username as long as the password is the API key.
func basicAuth(apiKey string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("anystring:"+apiKey))
}
