// Package client talks to a running formcoach daemon over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Client is a struct for communicating with formcoach daemon
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no timeout, for long-lived responses.
	streamClient *http.Client
}

// NewClient is a constructor for creating a new Client. addr is host:port or
// a full http URL.
func NewClient(addr string) *Client {
	baseURL := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, address)
			if err != nil {
				if errors.Is(err, syscall.ECONNREFUSED) {
					return nil, ErrDaemonNotRunning
				}
				logrus.Errorf("failed to connect to daemon: %v", err)
				return nil, err
			}
			return conn, nil
		},
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Transport: transport, Timeout: 10 * time.Second},
		streamClient: &http.Client{Transport: transport},
	}
}

// Send is a method for sending a request to the formcoach daemon
func (c *Client) Send(method string, path string, data string) (string, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"base":   c.baseURL,
	}).Debug("sending request")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			return "", ErrDaemonNotRunning
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(b), statusError(resp.StatusCode, string(b))
}

func statusError(code int, body string) error {
	switch {
	case code >= 200 && code <= 299:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body)
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, body)
	default:
		return fmt.Errorf("got %d: %s", code, body)
	}
}

// Get is a method for sending a GET request to the formcoach daemon
func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

// Post is a method for sending a POST request to the formcoach daemon
func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}
