package tools

import (
	"context"

	"github.com/engramhq/engramd/internal/client"
)

// Tool is the interface all tools must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// ClientSource hands tools the live memory client. The serving layer backs
// it with the fingerprint-keyed manager, so tools follow configuration
// swaps without being rewired.
type ClientSource interface {
	Client(ctx context.Context) (*client.Client, error)
}

// ClientSourceFunc adapts a function to ClientSource.
type ClientSourceFunc func(ctx context.Context) (*client.Client, error)

func (f ClientSourceFunc) Client(ctx context.Context) (*client.Client, error) { return f(ctx) }

// StaticSource wraps a fixed client, mainly for tests.
func StaticSource(cli *client.Client) ClientSource {
	return ClientSourceFunc(func(context.Context) (*client.Client, error) { return cli, nil })
}
