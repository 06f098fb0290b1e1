package mailchimp

import "fmt"

// Error titles the endpoint maps to its own messages.
const (
	TitleMemberExists    = "Member Exists"
	TitleInvalidResource = "Invalid Resource"
)

// Member is the subset of the list member resource returned on success.
type Member struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Status       string `json:"status"`
	ListID       string `json:"list_id"`
}

// ErrorResponse is the problem document Mailchimp returns with non-2xx replies.
// All fields are optional.
type ErrorResponse struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Instance string

	// StatusCode is the HTTP status of the reply and Raw its undecoded body.
	StatusCode int
	Raw        string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("error response %d from Mailchimp API: %s", e.StatusCode, e.Raw)
}
