// Package syncclient delivers session snapshots to the remote collector.
// Every call is independent and best-effort: failures are reported through
// an Outcome and never retried, since the next snapshot supersedes this one.
package syncclient

import (
	"context"
	"fmt"
	"time"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

// Outcome describes one delivery attempt
type Outcome struct {
	Delivered  bool
	StatusCode int
	Err        error
	Latency    time.Duration
}

// Client is a snapshot transport
type Client interface {
	Send(ctx context.Context, snap model.Snapshot) Outcome
	Close() error
}

// New builds the transport named in cfg
func New(cfg config.SyncConfig) (Client, error) {
	switch cfg.Transport {
	case "", "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("collector endpoint is required for http transport")
		}
		return NewHTTPClient(cfg.Endpoint, cfg.Timeout), nil
	case "grpc":
		if cfg.GRPCAddr == "" {
			return nil, fmt.Errorf("collector grpc_addr is required for grpc transport")
		}
		return NewGRPCClient(cfg.GRPCAddr)
	}
	return nil, fmt.Errorf("unknown collector transport %q", cfg.Transport)
}

// Discard is a Client that drops every snapshot, for running the tracker
// with no collector configured
type Discard struct{}

func (Discard) Send(context.Context, model.Snapshot) Outcome {
	return Outcome{Err: fmt.Errorf("no collector configured")}
}

func (Discard) Close() error { return nil }
