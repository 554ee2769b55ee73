package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
)

// #region service-client
// PolicyServiceClient is the client API of the policy service.
type PolicyServiceClient interface {
	Infer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	NextPrior(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type policyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPolicyServiceClient returns a raw client over cc.
func NewPolicyServiceClient(cc grpc.ClientConnInterface) PolicyServiceClient {
	return &policyServiceClient{cc: cc}
}

func (c *policyServiceClient) Infer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, inferMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *policyServiceClient) NextPrior(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, nextPriorMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service-client

// #region client-struct
// PolicyClient wraps the gRPC connection to a planner service.
type PolicyClient struct {
	conn   *grpc.ClientConn
	client PolicyServiceClient
}

// #endregion client-struct

// #region constructor
// NewPolicyClient connects to a planner gRPC server.
func NewPolicyClient(addr string, opts ...grpc.DialOption) (*PolicyClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &PolicyClient{
		conn:   conn,
		client: NewPolicyServiceClient(conn),
	}, nil
}

// NewPolicyClientWithService creates a PolicyClient with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewPolicyClientWithService(svc PolicyServiceClient) *PolicyClient {
	return &PolicyClient{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *PolicyClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region infer
// Infer sends beliefs to the planner service and returns its decision.
func (c *PolicyClient) Infer(ctx context.Context, qs model.Beliefs) (*planner.Decision, error) {
	in, err := EncodeBeliefs(qs)
	if err != nil {
		return nil, fmt.Errorf("encode beliefs: %w", err)
	}
	resp, err := c.client.Infer(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("infer rpc: %w", err)
	}
	return DecodeDecision(resp)
}

// #endregion infer

// #region next-prior
// NextPrior asks the planner service for the beliefs predicted under action.
func (c *PolicyClient) NextPrior(ctx context.Context, qs model.Beliefs, action []int) (model.Beliefs, error) {
	in, err := EncodeBeliefs(qs)
	if err != nil {
		return nil, fmt.Errorf("encode beliefs: %w", err)
	}
	in.Fields["action"] = structpb.NewListValue(&structpb.ListValue{Values: intValues(action)})
	resp, err := c.client.NextPrior(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("next prior rpc: %w", err)
	}
	return DecodeBeliefs(resp)
}

func intValues(xs []int) []*structpb.Value {
	out := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		out[i] = structpb.NewNumberValue(float64(x))
	}
	return out
}

// #endregion next-prior
