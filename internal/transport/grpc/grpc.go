// Package grpc implements the gRPC transport for kora.
//
// The transport exposes the kora.interview.v1.Interview service. Requests and
// results are the message package types carried by a JSON codec, so callers
// set the "json" content subtype (see Dial). The standard
// grpc.health.v1.Health service is registered alongside.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/kora/internal/dispatch"
	"github.com/nadzzz/kora/internal/interview"
	"github.com/nadzzz/kora/internal/message"
	"github.com/nadzzz/kora/internal/transport"
	"github.com/nadzzz/kora/internal/whisper"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "kora.interview.v1.Interview"

const codecName = "json"

// methods maps RPC names to the actions they run.
var methods = []struct {
	name   string
	action message.Action
}{
	{"Snapshot", message.ActionSnapshot},
	{"Summary", message.ActionSummary},
	{"Restart", message.ActionRestart},
	{"SelectStyle", message.ActionSelectStyle},
	{"Begin", message.ActionBegin},
	{"StartAnswer", message.ActionStartAnswer},
	{"SubmitAnswer", message.ActionSubmitAnswer},
	{"SubmitVoiceAnswer", message.ActionSubmitVoiceAnswer},
	{"ToggleTextMode", message.ActionToggleTextMode},
	{"CaptureAudio", message.ActionCaptureAudio},
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

// interviewServer is the handler type checked by grpc.Server.RegisterService.
type interviewServer interface {
	call(ctx context.Context, req *message.Request) (*message.Result, error)
}

type service struct {
	handler transport.Handler
}

func (s *service) call(ctx context.Context, req *message.Request) (*message.Result, error) {
	req.Source = "grpc"
	result, err := s.handler(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return result, nil
}

func unaryHandler(name string, action message.Action) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(message.Request)
		if err := dec(in); err != nil {
			return nil, err
		}
		in.Action = action
		s := srv.(interviewServer)
		if interceptor == nil {
			return s.call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return s.call(ctx, req.(*message.Request))
		})
	}
}

func serviceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*interviewServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "kora/interview/v1/interview.proto",
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.name,
			Handler:    unaryHandler(m.name, m.action),
		})
	}
	return desc
}

// toStatus maps an action error to a gRPC status.
func toStatus(err error) error {
	code := codes.InvalidArgument
	switch {
	case errors.Is(err, interview.ErrInvalidTransition),
		errors.Is(err, interview.ErrGenerating),
		errors.Is(err, interview.ErrSpeaking),
		errors.Is(err, interview.ErrConfirmationRequired),
		errors.Is(err, whisper.ErrNotListening):
		code = codes.FailedPrecondition
	case errors.Is(err, dispatch.ErrNoTranscriber):
		code = codes.Unimplemented
	case errors.Is(err, dispatch.ErrTranscription):
		code = codes.Unavailable
	case errors.Is(err, dispatch.ErrUnknownAction):
		code = codes.NotFound
	}
	return status.Error(code, err.Error())
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	slog.Info("grpc transport listening", "port", t.port)
	return t.serve(ctx, lis, handler)
}

func (t *Transport) serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = grpc.NewServer()
	t.server.RegisterService(serviceDesc(), &service{handler: handler})

	t.health = health.NewServer()
	healthpb.RegisterHealthServer(t.server, t.health)
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	return t.server.Serve(lis)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.health != nil {
		t.health.Shutdown()
	}
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

// Client calls a running daemon's Interview service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr (host:port) without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Handle runs req on the daemon. It has the shape of transport.Handler so a
// view can drive a local dispatcher or a remote daemon alike.
func (c *Client) Handle(ctx context.Context, req *message.Request) (*message.Result, error) {
	name := ""
	for _, m := range methods {
		if m.action == req.Action {
			name = m.name
			break
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: %q", dispatch.ErrUnknownAction, req.Action)
	}

	out := new(message.Result)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+name, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Check asks the daemon's health service about the Interview service.
func (c *Client) Check(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx,
		&healthpb.HealthCheckRequest{Service: ServiceName},
		grpc.CallContentSubtype("proto"))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
