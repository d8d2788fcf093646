// Package grpc exposes admission decisions as a gRPC service. Messages are
// google.protobuf.Struct values so callers need no generated stubs.
package grpc

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/internal/middleware/ratelimit"
	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/pkg/errors"
)

const (
	ServiceName  = "ratelimitfilter.v1.Decider"
	DecideMethod = "/" + ServiceName + "/Decide"
)

// DeciderServer is the server API for the Decider service
type DeciderServer interface {
	Decide(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var deciderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeciderServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Decide",
			Handler:    decideHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ratelimitfilter/v1/decider.proto",
}

// RegisterDeciderServer registers srv on s
func RegisterDeciderServer(s grpc.ServiceRegistrar, srv DeciderServer) {
	s.RegisterService(&deciderServiceDesc, srv)
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeciderServer).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DecideMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeciderServer).Decide(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// DecideRequest describes the request to decide on
type DecideRequest struct {
	Method    string
	Path      string
	Authority string
	Scheme    string
	Headers   []attributes.Pair
}

// DecideResponse is the filter's answer. Status and Body are what an HTTP
// front-end would send for a denied request.
type DecideResponse struct {
	Outcome pipeline.Outcome
	Status  int
	Body    string
	Limit   string
}

// Service implements DeciderServer on top of a decider
type Service struct {
	decider ratelimit.Decider
}

// NewService creates the Decider service
func NewService(decider ratelimit.Decider) *Service {
	return &Service{decider: decider}
}

// Decide runs one admission decision. Failures surface as Unavailable when
// storage is at fault and Internal otherwise.
func (s *Service) Decide(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}

	pairs := attributes.FromPairs(req.Method, req.Path, req.Authority, req.Scheme, req.Headers)

	d, err := s.decider.Decide(ctx, pairs)
	if err != nil {
		return nil, statusFromError(err)
	}

	resp := DecideResponse{Outcome: d.Outcome, Status: http.StatusOK}
	if d.Outcome == pipeline.Denied {
		resp.Status = http.StatusTooManyRequests
		resp.Body = ratelimit.DeniedBody
		resp.Limit = d.Limit
	}
	return encodeResponse(resp)
}

func statusFromError(err error) error {
	code := codes.Internal
	switch errors.TypeOf(err) {
	case errors.ErrorTypeStorage:
		code = codes.Unavailable
	case errors.ErrorTypeBadRequest:
		code = codes.InvalidArgument
	case errors.ErrorTypeTimeout:
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

func decodeRequest(in *structpb.Struct) (DecideRequest, error) {
	fields := in.GetFields()
	req := DecideRequest{
		Method:    fields["method"].GetStringValue(),
		Path:      fields["path"].GetStringValue(),
		Authority: fields["authority"].GetStringValue(),
		Scheme:    fields["scheme"].GetStringValue(),
	}
	if req.Method == "" {
		return req, status.Error(codes.InvalidArgument, "method is required")
	}
	for i, v := range fields["headers"].GetListValue().GetValues() {
		h := v.GetStructValue().GetFields()
		name := h["name"].GetStringValue()
		if name == "" {
			return req, status.Errorf(codes.InvalidArgument, "header %d has no name", i)
		}
		req.Headers = append(req.Headers, attributes.Pair{Name: name, Value: h["value"].GetStringValue()})
	}
	return req, nil
}

func encodeRequest(req DecideRequest) (*structpb.Struct, error) {
	headers := make([]any, 0, len(req.Headers))
	for _, h := range req.Headers {
		headers = append(headers, map[string]any{"name": h.Name, "value": h.Value})
	}
	return structpb.NewStruct(map[string]any{
		"method":    req.Method,
		"path":      req.Path,
		"authority": req.Authority,
		"scheme":    req.Scheme,
		"headers":   headers,
	})
}

func encodeResponse(resp DecideResponse) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{
		"outcome": string(resp.Outcome),
		"status":  resp.Status,
		"body":    resp.Body,
		"limit":   resp.Limit,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func decodeResponse(out *structpb.Struct) DecideResponse {
	fields := out.GetFields()
	return DecideResponse{
		Outcome: pipeline.Outcome(fields["outcome"].GetStringValue()),
		Status:  int(fields["status"].GetNumberValue()),
		Body:    fields["body"].GetStringValue(),
		Limit:   fields["limit"].GetStringValue(),
	}
}

// Client calls a remote Decider service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Decide asks the remote filter for a decision
func (c *Client) Decide(ctx context.Context, req DecideRequest, opts ...grpc.CallOption) (DecideResponse, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return DecideResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DecideMethod, in, out, opts...); err != nil {
		return DecideResponse{}, err
	}
	return decodeResponse(out), nil
}
