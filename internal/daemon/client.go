package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client talks to a running Master over its Unix control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient builds a Client for cfg's socket.
func NewClient(cfg Config) *Client {
	return &Client{socketPath: cfg.SocketPath, timeout: cfg.Timeout}
}

// Connect dials the Master's control socket.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to master: %w", err)
	}
	return conn, nil
}

// IsRunning reports whether a Master is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// HealthCheck asks the Master to report per-upstream reachability.
func (c *Client) HealthCheck(ctx context.Context) (map[string]string, error) {
	var result map[string]string
	if err := c.call(ctx, MethodHealthCheck, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SystemStats retrieves process-level daemon statistics.
func (c *Client) SystemStats(ctx context.Context) (SystemStatsResult, error) {
	var result SystemStatsResult
	err := c.call(ctx, MethodGetSystemStats, nil, &result)
	return result, err
}

// ProcessingStats retrieves the fleet's aggregate file counters.
func (c *Client) ProcessingStats(ctx context.Context) (map[string]any, error) {
	var result map[string]any
	err := c.call(ctx, MethodGetProcessingStats, nil, &result)
	return result, err
}

// QueueStatus retrieves every currently tracked WorkerRecord.
func (c *Client) QueueStatus(ctx context.Context) ([]WatchStatusResult, error) {
	var result []WatchStatusResult
	err := c.call(ctx, MethodGetQueueStatus, nil, &result)
	return result, err
}

// StartWatching asks the Master to admit dir.
func (c *Client) StartWatching(ctx context.Context, dir string) error {
	var result AckResult
	return c.call(ctx, MethodStartWatching, DirectoryParams{Directory: dir}, &result)
}

// StopWatching asks the Master to stop the Worker owning dir.
func (c *Client) StopWatching(ctx context.Context, dir string) error {
	var result AckResult
	return c.call(ctx, MethodStopWatching, DirectoryParams{Directory: dir}, &result)
}

// WatchStatus retrieves one directory's current WorkerRecord.
func (c *Client) WatchStatus(ctx context.Context, dir string) (WatchStatusResult, error) {
	var result WatchStatusResult
	err := c.call(ctx, MethodGetWatchStatus, DirectoryParams{Directory: dir}, &result)
	return result, err
}

// ListWatchedDirectories retrieves every directory the Master knows
// about, running or not.
func (c *Client) ListWatchedDirectories(ctx context.Context) ([]WatchStatusResult, error) {
	var result ListWatchedResult
	err := c.call(ctx, MethodListWatchedDirectories, nil, &result)
	return result.Directories, err
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID()}
	if err := c.send(conn, req); err != nil {
		return err
	}

	resp, err := c.receive(conn)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	if result == nil {
		return nil
	}

	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

func (c *Client) send(conn net.Conn, req Request) error {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func (c *Client) receive(conn net.Conn) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
