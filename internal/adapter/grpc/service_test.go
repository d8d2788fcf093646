package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/internal/clock"
	"ratelimitfilter/internal/limit"
	"ratelimitfilter/internal/middleware/ratelimit"
	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/internal/storage/memory"
	"ratelimitfilter/pkg/errors"
)

type failingDecider struct{ err error }

func (f failingDecider) Decide(ctx context.Context, pairs []attributes.Pair) (pipeline.Decision, error) {
	return pipeline.Decision{Outcome: pipeline.Failed}, f.err
}

type recordingDecider struct{ pairs []attributes.Pair }

func (r *recordingDecider) Decide(ctx context.Context, pairs []attributes.Pair) (pipeline.Decision, error) {
	r.pairs = pairs
	return pipeline.Decision{Outcome: pipeline.Allowed}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startBufconn serves an adapter over an in-memory listener
func startBufconn(t *testing.T, decider ratelimit.Decider) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	adapter := New(Config{}, decider, quietLogger())
	require.NoError(t, adapter.Serve(lis))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = adapter.Stop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDecideDefaultLimit(t *testing.T) {
	p, err := pipeline.New(pipeline.Config{
		Store:    memory.NewStore(nil),
		Clock:    clock.NewManual(time.Unix(1700000000, 0)),
		Registry: limit.DefaultRegistry(),
	})
	require.NoError(t, err)

	client := NewClient(startBufconn(t, p))
	ctx := context.Background()
	req := DecideRequest{
		Method:  "GET",
		Path:    "/",
		Headers: []attributes.Pair{{Name: "X-User-Id", Value: "alice"}},
	}

	for i := 0; i < 3; i++ {
		resp, err := client.Decide(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, pipeline.Allowed, resp.Outcome)
		assert.Equal(t, 200, resp.Status)
	}

	resp, err := client.Decide(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, DecideResponse{
		Outcome: pipeline.Denied,
		Status:  429,
		Body:    "Too many requests.\n",
		Limit:   limit.DefaultNamespace,
	}, resp)
}

func TestDecidePassesAttributes(t *testing.T) {
	d := &recordingDecider{}
	client := NewClient(startBufconn(t, d))

	_, err := client.Decide(context.Background(), DecideRequest{
		Method:    "POST",
		Path:      "/upload",
		Authority: "api.example.com",
		Scheme:    "https",
		Headers: []attributes.Pair{
			{Name: "x-b", Value: "1"},
			{Name: "x-a", Value: "2"},
			{Name: "x-b", Value: "3"},
		},
	})
	require.NoError(t, err)

	attrs := attributes.Extract(d.pairs)
	assert.Equal(t, "POST", attrs[attributes.Method])
	assert.Equal(t, "2", attrs["req.headers.x-a"])
	assert.Equal(t, "3", attrs["req.headers.x-b"])
}

func TestDecideLastHeaderWins(t *testing.T) {
	d := &recordingDecider{}
	client := NewClient(startBufconn(t, d))

	_, err := client.Decide(context.Background(), DecideRequest{
		Method: "GET",
		Headers: []attributes.Pair{
			{Name: "x-user-id", Value: "first"},
			{Name: "X-User-Id", Value: "last"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "last", attributes.Extract(d.pairs)["req.headers.x-user-id"])
}

func TestDecideErrors(t *testing.T) {
	tests := []struct {
		name    string
		decider failingDecider
		req     DecideRequest
		code    codes.Code
	}{
		{
			name:    "storage failure",
			decider: failingDecider{errors.NewError(errors.ErrorTypeStorage, "redis down")},
			req:     DecideRequest{Method: "GET"},
			code:    codes.Unavailable,
		},
		{
			name:    "corrupt snapshot",
			decider: failingDecider{errors.NewError(errors.ErrorTypeDecode, "bad blob")},
			req:     DecideRequest{Method: "GET"},
			code:    codes.Internal,
		},
		{
			name: "missing method",
			req:  DecideRequest{Path: "/"},
			code: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(startBufconn(t, tt.decider))
			_, err := client.Decide(context.Background(), tt.req)
			assert.Equal(t, tt.code, status.Code(err), "err = %v", err)
		})
	}
}

func TestDecideNamelessHeader(t *testing.T) {
	svc := NewService(&recordingDecider{})
	in, err := structpb.NewStruct(map[string]any{
		"method":  "GET",
		"headers": []any{map[string]any{"value": "x"}},
	})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthService(t *testing.T) {
	conn := startBufconn(t, &recordingDecider{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
