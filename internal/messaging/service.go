// Package messaging provides the message delivery boundary for GoalPipe.
//
// A Service sends text and choice prompts to users and surfaces inbound
// responses and delivery receipts as channels; the ResponseRouter feeds
// inbound responses into the setup workflow.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable message delivery abstraction.
// It supports sending messages and choice prompts, and provides channels for
// receipt and response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier, returning the canonical form used as the session key.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendChoices sends a message with selectable options rendered for the
	// transport.
	SendChoices(ctx context.Context, to string, body string, choices []models.Choice) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming user responses.
	Responses() <-chan models.Response
}

// nonDigitRegex strips everything except digits during canonicalization.
var nonDigitRegex = regexp.MustCompile(`\D`)

// canonicalizePhone validates a phone-number-shaped recipient and returns the
// canonical "+digits" form shared by every transport.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	digits := nonDigitRegex.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}
	return "+" + digits, nil
}

// RenderChoices appends choice options to a message body as numbered reply
// hints. WhatsApp text transports have no portable button support, so
// choices are rendered inline and matched by token on the way back.
func RenderChoices(body string, choices []models.Choice) string {
	if len(choices) == 0 {
		return body
	}
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for i, c := range choices {
		fmt.Fprintf(&b, "\n%d. %s (reply \"%s\")", i+1, c.Label, c.Token)
	}
	return b.String()
}
