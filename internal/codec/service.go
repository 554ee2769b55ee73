package codec

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region service-desc
const (
	serviceName     = "planner.v1.PolicyService"
	inferMethod     = "/" + serviceName + "/Infer"
	nextPriorMethod = "/" + serviceName + "/NextPrior"
)

// PolicyServer is the server API of the policy service.
type PolicyServer interface {
	Infer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NextPrior(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var policyServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PolicyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: unaryHandler(inferMethod, PolicyServer.Infer)},
		{MethodName: "NextPrior", Handler: unaryHandler(nextPriorMethod, PolicyServer.NextPrior)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "planner/v1/policy.proto",
}

func unaryHandler(method string, call func(PolicyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PolicyServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PolicyServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc

// #region server
// Server answers policy service calls from one planner. Stochastic selection
// draws from a shared, seeded generator.
type Server struct {
	p      *planner.Planner
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger. Defaults to slog.Default().
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSeed fixes the selection generator seed.
func WithSeed(seed1, seed2 uint64) ServerOption {
	return func(s *Server) {
		s.rng = rand.New(rand.NewPCG(seed1, seed2))
	}
}

// NewServer wraps p.
func NewServer(p *planner.Planner, opts ...ServerOption) *Server {
	s := &Server{
		p:      p,
		logger: slog.Default(),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register attaches a policy service for p to r.
func Register(r grpc.ServiceRegistrar, p *planner.Planner, opts ...ServerOption) *Server {
	s := NewServer(p, opts...)
	r.RegisterService(&policyServiceDesc, s)
	return s
}

// Infer decodes beliefs, runs one planning step and returns the decision.
func (s *Server) Infer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	qs, err := DecodeBeliefs(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	d, err := s.p.Infer(ctx, qs, s.rng)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("infer rpc failed", "error", err)
		return nil, toStatus(err)
	}

	out, err := EncodeDecision(d)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// NextPrior decodes beliefs and an action and returns the predicted beliefs.
func (s *Server) NextPrior(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	qs, err := DecodeBeliefs(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	action, err := DecodeAction(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	next, err := s.p.NextPrior(qs, action)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := EncodeBeliefs(next)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus maps contract violations to InvalidArgument and context errors to
// their gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, model.ErrShapeMismatch),
		errors.Is(err, model.ErrDependencyRange),
		errors.Is(err, model.ErrActionRange),
		errors.Is(err, tensor.ErrShape),
		errors.Is(err, policy.ErrUnsupportedMode),
		errors.Is(err, policy.ErrEmptyPolicySet):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// #endregion server
