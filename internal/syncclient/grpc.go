package syncclient

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/rpc"
)

// GRPCClient submits snapshots over the collector's gRPC service
type GRPCClient struct {
	conn   *grpc.ClientConn
	client rpc.CollectorServiceClient
}

// NewGRPCClient connects lazily to addr. Extra dial options are appended
// after the default insecure transport credentials.
func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, err
	}

	return &GRPCClient{
		conn:   conn,
		client: rpc.NewCollectorServiceClient(conn),
	}, nil
}

func (c *GRPCClient) Send(ctx context.Context, snap model.Snapshot) Outcome {
	start := time.Now()

	msg, err := rpc.SnapshotToStruct(snap)
	if err != nil {
		return Outcome{Err: fmt.Errorf("encode snapshot: %w", err)}
	}

	ack, err := c.client.SubmitSnapshot(ctx, msg)
	if err != nil {
		st, _ := status.FromError(err)
		return Outcome{
			StatusCode: int(st.Code()),
			Err:        err,
			Latency:    time.Since(start),
		}
	}

	out := Outcome{Latency: time.Since(start)}
	if !rpc.AckSuccess(ack) {
		out.Err = fmt.Errorf("collector rejected snapshot: %s", ack.GetFields()["message"].GetStringValue())
		return out
	}
	out.Delivered = true
	return out
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
