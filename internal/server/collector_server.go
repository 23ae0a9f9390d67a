package server

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gosight/slidetrack/internal/ingest"
	"github.com/gosight/slidetrack/internal/rpc"
	"github.com/gosight/slidetrack/internal/validation"
)

// CollectorServer is the gRPC side of the collector
type CollectorServer struct {
	ingest *ingest.Service
}

var _ rpc.CollectorServiceServer = (*CollectorServer)(nil)

func NewCollectorServer(svc *ingest.Service) *CollectorServer {
	return &CollectorServer{ingest: svc}
}

// SubmitSnapshot answers validation failures with a negative ack and
// transport-level problems with a status error
func (s *CollectorServer) SubmitSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snap, err := rpc.StructToSnapshot(in)
	if err != nil {
		return rpc.Ack(false, err.Error()), nil
	}

	_, err = s.ingest.Accept(ctx, snap, ingest.Source{
		Transport: "grpc",
		UserAgent: userAgent(ctx),
		ClientIP:  clientIP(ctx),
	})

	var invalid *ingest.InvalidError
	switch {
	case err == nil:
		return rpc.Ack(true, "Snapshot accepted"), nil
	case errors.As(err, &invalid):
		return rpc.Ack(false, invalid.Error()), nil
	case errors.Is(err, validation.ErrRateLimited):
		return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
	default:
		log.Error().Err(err).Str("session_id", snap.SessionID).Msg("gRPC snapshot rejected")
		return nil, status.Error(codes.Unavailable, err.Error())
	}
}

func userAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get("user-agent"); len(v) > 0 {
		return v[0]
	}
	return ""
}

func clientIP(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if v := md.Get("x-real-ip"); len(v) > 0 {
			return v[0]
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
