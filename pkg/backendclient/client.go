package backendclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"xray-backend/internal/constants"
	"xray-backend/internal/models"
)

// Client submits requests to the backend over its Unix socket
type Client struct {
	socketPath string
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewClient creates a new backend client
func NewClient(socketPath string, timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = constants.DefaultClientTimeout * time.Second
	}
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
		logger:     logger,
	}
}

// Call sends req and waits for the single response line
func (c *Client) Call(ctx context.Context, req *models.Request) (models.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c.logger.Debugf("Sending action %q to %s", req.Action, c.socketPath)

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp models.Response
	dec := json.NewDecoder(io.LimitReader(conn, constants.MaxRequestBytes*8))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp, nil
}
