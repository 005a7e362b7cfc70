package enums

import (
	"fmt"
	"strings"
)

// WebhookProvider identifies a third-party event source.
type WebhookProvider string

const (
	WebhookProviderPayments WebhookProvider = "payments"
	WebhookProviderIdentity WebhookProvider = "identity"
)

var validWebhookProviders = []WebhookProvider{
	WebhookProviderPayments,
	WebhookProviderIdentity,
}

// String implements fmt.Stringer.
func (p WebhookProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known WebhookProvider.
func (p WebhookProvider) IsValid() bool {
	for _, candidate := range validWebhookProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseWebhookProvider converts raw input into a WebhookProvider.
func ParseWebhookProvider(value string) (WebhookProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validWebhookProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook provider %q", value)
}
