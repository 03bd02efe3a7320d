package qbittorrent

import "time"

// Option configures a Client.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	timeout       time.Duration
	maxRetries    int
	retryDelay    time.Duration
	basicUser     string
	basicPass     string
	tlsSkipVerify bool
}

func defaultOptions() clientOptions {
	return clientOptions{
		timeout:    30 * time.Second,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(retries int) Option {
	return func(o *clientOptions) {
		if retries >= 0 {
			o.maxRetries = retries
		}
	}
}

// WithRetryDelay sets the delay between retry attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *clientOptions) {
		o.retryDelay = delay
	}
}

// WithBasicAuth sets credentials for a reverse proxy in front of the WebUI.
func WithBasicAuth(user, pass string) Option {
	return func(o *clientOptions) {
		o.basicUser = user
		o.basicPass = pass
	}
}

// WithInsecureSkipVerify disables certificate verification.
// Use with caution and only for development/testing.
func WithInsecureSkipVerify() Option {
	return func(o *clientOptions) {
		o.tlsSkipVerify = true
	}
}
