package client

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport logs one line per request. Bodies and headers are never
// logged since they carry tokens and passwords.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *zap.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	log := t.Logger
	if log == nil {
		log = zap.L()
	}

	start := time.Now()
	resp, err := transport.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		log.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	log.Debug("request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	return resp, nil
}

// NewHTTPClient returns an http.Client that logs through log.
func NewHTTPClient(timeout time.Duration, log *zap.Logger) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &LoggingTransport{
			Transport: http.DefaultTransport,
			Logger:    log,
		},
	}
}
