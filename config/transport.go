package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when the server URL or API key is blank.
var ErrInvalidConfig = errors.New("invalid config")

// TransportConfig is the server URL and API key of one logged-in session.
// It is immutable once built.
type TransportConfig struct {
	baseURL string
	apiKey  string
}

// NewTransportConfig trims both values and rejects blank ones. The URL is not
// parsed here; a malformed URL fails when the first request is issued.
func NewTransportConfig(baseURL, apiKey string) (TransportConfig, error) {
	baseURL = strings.TrimSpace(baseURL)
	apiKey = strings.TrimSpace(apiKey)

	switch {
	case baseURL == "" && apiKey == "":
		return TransportConfig{}, fmt.Errorf("%w: server URL and API key are required", ErrInvalidConfig)
	case baseURL == "":
		return TransportConfig{}, fmt.Errorf("%w: server URL is required", ErrInvalidConfig)
	case apiKey == "":
		return TransportConfig{}, fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	return TransportConfig{baseURL: baseURL, apiKey: apiKey}, nil
}

// BaseURL is the trimmed server URL, e.g. http://10.0.0.5:5000.
func (t TransportConfig) BaseURL() string { return t.baseURL }

// APIKey is the trimmed key sent in the x-api-key header.
func (t TransportConfig) APIKey() string { return t.apiKey }

// IsZero reports whether t was never built through NewTransportConfig.
func (t TransportConfig) IsZero() bool {
	return t.baseURL == "" && t.apiKey == ""
}

// String keeps the key out of logs and error messages.
func (t TransportConfig) String() string {
	return fmt.Sprintf("%s (api key: ***)", t.baseURL)
}
