package session

import "time"

// Config contains session manager configuration
type Config struct {
	// ClientID identifies the embedding client in logs and the User-Agent
	ClientID string

	// ConcurrentDownloads bounds how many transfers move bytes at once
	ConcurrentDownloads int

	// ProgressInterval is the minimum time between Progress events of one transfer
	ProgressInterval time.Duration

	// RateLimitKBps caps total bandwidth across transfers, 0 for unlimited
	RateLimitKBps int

	// ConnectTimeout bounds dialing and the TLS handshake
	ConnectTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers, 0 for none
	ResponseHeaderTimeout time.Duration

	// UserAgent is sent with every request; derived from ClientID when empty
	UserAgent string

	// ReadBufferSize is the chunk size for body reads
	ReadBufferSize int
}

// DefaultConfig returns default session configuration
func DefaultConfig() *Config {
	return &Config{
		ClientID:              "download-controller",
		ConcurrentDownloads:   3,
		ProgressInterval:      500 * time.Millisecond,
		ConnectTimeout:        30 * time.Second,
		ResponseHeaderTimeout: time.Minute,
		ReadBufferSize:        32 * 1024,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ClientID == "" {
		c.ClientID = def.ClientID
	}
	if c.ConcurrentDownloads <= 0 {
		c.ConcurrentDownloads = def.ConcurrentDownloads
	}
	if c.ProgressInterval < 0 {
		c.ProgressInterval = 0
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ResponseHeaderTimeout < 0 {
		c.ResponseHeaderTimeout = 0
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.UserAgent == "" {
		c.UserAgent = c.ClientID
	}
}
