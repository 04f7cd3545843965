package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName       = "softphone.token.v1.TokenService"
	issueTokenMethod  = "/" + serviceName + "/IssueToken"
	serviceDescSource = "softphone/token/v1/token.proto"
)

// GRPCConfig holds gRPC client configuration
type GRPCConfig struct {
	Address           string
	ConnectTimeout    time.Duration
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// DefaultGRPCConfig returns sensible defaults
func DefaultGRPCConfig() GRPCConfig {
	return GRPCConfig{
		Address:           "localhost:9090",
		ConnectTimeout:    10 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
	}
}

// GRPCProvider fetches tokens from a remote token service.
type GRPCProvider struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewGRPCProvider creates a client for the token service. Extra dial options
// are appended to the defaults.
func NewGRPCProvider(cfg GRPCConfig, extra ...grpc.DialOption) (*GRPCProvider, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create token client for %s: %w", cfg.Address, err)
	}

	slog.Info("[gRPC] Token client ready", "address", cfg.Address)
	return &GRPCProvider{conn: conn, timeout: cfg.ConnectTimeout}, nil
}

// Token implements session.TokenProvider.
func (p *GRPCProvider) Token(ctx context.Context, identity string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out := new(wrapperspb.StringValue)
	if err := p.conn.Invoke(ctx, issueTokenMethod, wrapperspb.String(identity), out); err != nil {
		if status.Code(err) == codes.FailedPrecondition {
			return "", fmt.Errorf("IssueToken RPC failed: %w", ErrMissingCredentials)
		}
		return "", fmt.Errorf("IssueToken RPC failed: %w", err)
	}
	if out.GetValue() == "" {
		return "", errors.New("IssueToken RPC returned an empty token")
	}
	return out.GetValue(), nil
}

// Close releases the connection.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}

// tokenServiceServer is the server API of the token service.
type tokenServiceServer interface {
	IssueToken(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

func issueTokenHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tokenServiceServer).IssueToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: issueTokenMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(tokenServiceServer).IssueToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*tokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "IssueToken",
			Handler:    issueTokenHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: serviceDescSource,
}

// Server exposes an Issuer over gRPC.
type Server struct {
	issuer Issuer
}

var _ tokenServiceServer = (*Server)(nil)

// NewServer creates a token server.
func NewServer(issuer Issuer) *Server {
	return &Server{issuer: issuer}
}

// Register adds the token service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// IssueToken mints a token for the identity in req.
func (s *Server) IssueToken(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	identity := req.GetValue()
	if identity == "" {
		return nil, status.Error(codes.InvalidArgument, "identity is required")
	}
	tok, err := s.issuer.Issue(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "issue token: %v", err)
	}
	return wrapperspb.String(tok), nil
}

// UnaryServerInterceptor logs each call and turns handler panics into
// Internal errors.
func UnaryServerInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (out interface{}, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			slog.Error("[gRPC] Panic in handler", "method", info.FullMethod, "panic", r, "stack", string(buf))
			out = nil
			err = status.Errorf(codes.Internal, "panic in %s", info.FullMethod)
		}
		code := status.Code(err)
		switch code {
		case codes.OK:
			slog.Debug("[gRPC] Handled", "method", info.FullMethod, "duration", time.Since(start))
		case codes.Unknown, codes.Internal, codes.DataLoss:
			slog.Error("[gRPC] Handler failed", "method", info.FullMethod, "code", code.String(), "error", err)
		default:
			slog.Info("[gRPC] Request rejected", "method", info.FullMethod, "code", code.String(), "error", err)
		}
	}()
	return handler(ctx, req)
}
