package syncclient

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/rpc"
)

type fakeCollector struct {
	received []model.Snapshot
	reply    *structpb.Struct
	err      error
}

func (f *fakeCollector) SubmitSnapshot(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap, err := rpc.StructToSnapshot(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f.received = append(f.received, snap)
	return f.reply, nil
}

func newBufconnClient(t *testing.T, collector *fakeCollector) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterCollectorServiceServer(srv, collector)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGRPCClient_Delivered(t *testing.T) {
	collector := &fakeCollector{reply: rpc.Ack(true, "accepted")}
	c := newBufconnClient(t, collector)

	out := c.Send(context.Background(), testSnapshot())

	assert.True(t, out.Delivered)
	assert.NoError(t, out.Err)
	require.Len(t, collector.received, 1)
	assert.Equal(t, "sess-1", collector.received[0].SessionID)
	assert.Equal(t, 5.0, collector.received[0].Slides[0].Seconds)
}

func TestGRPCClient_Rejected(t *testing.T) {
	c := newBufconnClient(t, &fakeCollector{reply: rpc.Ack(false, "rate limit exceeded")})

	out := c.Send(context.Background(), testSnapshot())

	assert.False(t, out.Delivered)
	assert.ErrorContains(t, out.Err, "rate limit exceeded")
}

func TestGRPCClient_StatusError(t *testing.T) {
	c := newBufconnClient(t, &fakeCollector{err: status.Error(codes.Unavailable, "kafka down")})

	out := c.Send(context.Background(), testSnapshot())

	assert.False(t, out.Delivered)
	assert.Equal(t, int(codes.Unavailable), out.StatusCode)
}
