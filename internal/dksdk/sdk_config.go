package dksdk

import (
	"net/url"
	"time"
)

// Config is the configuration for the DKSDK
type Config struct {
	BaseURL string        // BaseURL is required
	Token   string        // Token is sent as a bearer token when set
	Timeout time.Duration // Timeout overrides the HTTP client default when positive
	Debug   bool          // Debug dumps requests and responses
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidServerURL
	}

	return nil
}
