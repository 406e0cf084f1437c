package client

import (
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/artcritique/brushup/pkg/config"
	"github.com/artcritique/brushup/pkg/logger"
)

// UserAgent is sent with every request.
const UserAgent = "BrushUp-CLI/0.1.0"

var httpClient *resty.Client

// New builds a client for baseURL with request/response debug logging.
func New(baseURL string, timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(timeout)
	c.SetHeader("User-Agent", UserAgent)
	c.SetHeader("Accept", "application/json")

	c.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})

	c.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "took", resp.Time())
		return nil
	})
	return c
}

// Init initializes the HTTP client from configuration
func Init() {
	baseURL := config.GetString("api.base_url")
	timeout := time.Duration(config.GetInt("api.timeout")) * time.Second
	httpClient = New(baseURL, timeout)
}

// GetClient returns the HTTP client
func GetClient() *resty.Client {
	if httpClient == nil {
		Init()
	}
	return httpClient
}

// SetClient replaces the shared client.
func SetClient(c *resty.Client) {
	httpClient = c
}

// SetAuthToken sets the authorization token
func SetAuthToken(token string) {
	GetClient().SetAuthToken(token)
}

// ClearAuthToken clears the authorization token
func ClearAuthToken() {
	// Re-init the client to clear auth headers
	Init()
}
