package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls keygate.v1.Keygate over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Dispatch sends one command line and returns the reply text.
func (c *Client) Dispatch(ctx context.Context, text string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, DispatchMethod, wrapperspb.String(text), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
