package gemini

import (
	"net/http"
	"time"
)

type Option func(*options)

type options struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	sleep      func(time.Duration)
}

func defaultOptions() options {
	return options{
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		timeout:    120 * time.Second,
		maxRetries: 3,
	}
}

func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxRetries bounds the number of attempts made for a single request.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// withSleep replaces the backoff wait; tests use this to avoid real delays.
// When unset, the client waits on a timer that a cancelled context cuts
// short.
func withSleep(fn func(time.Duration)) Option {
	return func(o *options) { o.sleep = fn }
}
