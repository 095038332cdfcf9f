package dksdk

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/datakitchen/dkcli/internal/version"
	"github.com/google/uuid"
	"github.com/imroc/req/v3"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderDKVersion = "X-DK-Version"
	HeaderRequestID = "X-DK-Request-Id"
)

// DKSDK is the client for the DataKitchen recipe and kitchen API.
// Requests are never retried: every failure is reported to the caller.
type DKSDK struct {
	client    *req.Client
	baseURL   string
	requestID string

	Recipe  *RecipeAPI
	Kitchen *KitchenAPI
}

// New creates a client for cfg.BaseURL authenticated with cfg.Token.
func New(cfg *Config) (*DKSDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderDKVersion, version.Version).
		SetCommonHeader(HeaderRequestID, requestID).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if cfg.Token != "" {
		client.SetCommonBearerAuthToken(cfg.Token)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.Debug {
		client.EnableDumpAll()
	}

	return &DKSDK{
		client:    client,
		baseURL:   cfg.BaseURL,
		requestID: requestID,
		Recipe:    newRecipeAPI(client),
		Kitchen:   newKitchenAPI(client),
	}, nil
}

func (s *DKSDK) BaseURL() string {
	return s.baseURL
}

// RequestID is sent with every request of this client so server logs can be
// correlated with one CLI invocation.
func (s *DKSDK) RequestID() string {
	return s.requestID
}

func (s *DKSDK) Close() {
	s.client.GetClient().CloseIdleConnections()
}

// apiPath joins escaped segments onto a route. A segment may itself be a
// slash separated file path, each part of which is escaped on its own.
func apiPath(route string, segments ...string) string {
	var b strings.Builder
	b.WriteString(route)
	for _, seg := range segments {
		for _, part := range strings.Split(strings.Trim(seg, "/"), "/") {
			b.WriteString("/")
			b.WriteString(url.PathEscape(part))
		}
	}
	return b.String()
}

func requireNames(names ...string) error {
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%w: kitchen, recipe and file names must not be empty", ErrInvalidRequest)
		}
	}
	return nil
}
