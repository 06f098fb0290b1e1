// Package types provides the request and response bodies of the subscribe endpoint.
package types

// SubscriptionRequest models the JSON body posted by the waitlist form.
type SubscriptionRequest struct {
	Email string `json:"email"`
}

// SubscriptionResult is the JSON body returned to the caller. Validation and
// method errors only set Error; provider outcomes also set Success.
type SubscriptionResult struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
