package kitejsonrpc

import (
	"context"
	"io"
	"runtime"
	"strings"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/kitewallet/kite/pkg/engine"
)

var _ engine.API = &Client{}

type Client struct {
	c *jsonrpc2.Conn
}

func NewClient(rwc io.ReadWriteCloser) *Client {
	ctx := context.Background()
	objStream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{})
	c := jsonrpc2.NewConn(ctx, objStream, nil)
	return &Client{c: c}
}

func (c *Client) Close() error {
	return c.c.Close()
}

func (c *Client) AddAccount(ctx context.Context, req *engine.AddAccountReq) error {
	var res struct{}
	return c.c.Call(ctx, currentMethodName(), req, &res)
}

func (c *Client) GetAccount(ctx context.Context, req *engine.GetAccountReq) (*engine.GetAccountRes, error) {
	var res engine.GetAccountRes
	if err := c.c.Call(ctx, currentMethodName(), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetWallet(ctx context.Context, req *engine.GetWalletReq) (*engine.GetWalletRes, error) {
	var res engine.GetWalletRes
	if err := c.c.Call(ctx, currentMethodName(), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) WaitAccount(ctx context.Context, req *engine.WaitAccountReq) (*engine.WaitAccountRes, error) {
	var res engine.WaitAccountRes
	if err := c.c.Call(ctx, currentMethodName(), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListJettons(ctx context.Context, req *engine.ListJettonsReq) (*engine.ListJettonsRes, error) {
	var res engine.ListJettonsRes
	if err := c.c.Call(ctx, currentMethodName(), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) AddStaking(ctx context.Context, req *engine.AddStakingReq) error {
	var res struct{}
	return c.c.Call(ctx, currentMethodName(), req, &res)
}

func (c *Client) ListStaking(ctx context.Context, req *engine.ListStakingReq) (*engine.ListStakingRes, error) {
	var res engine.ListStakingRes
	if err := c.c.Call(ctx, currentMethodName(), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Invalidate(ctx context.Context, req *engine.InvalidateReq) error {
	var res struct{}
	return c.c.Call(ctx, currentMethodName(), req, &res)
}

func (c *Client) InvalidateAll(ctx context.Context) error {
	var res struct{}
	return c.c.Call(ctx, currentMethodName(), nil, &res)
}

func (c *Client) Status(ctx context.Context) (*engine.StatusRes, error) {
	var res engine.StatusRes
	if err := c.c.Call(ctx, currentMethodName(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func currentMethodName() string {
	fpcs := make([]uintptr, 1)
	n := runtime.Callers(2, fpcs)
	if n == 0 {
		return ""
	}
	caller := runtime.FuncForPC(fpcs[0] - 1)
	if caller == nil {
		return ""
	}
	parts := strings.Split(caller.Name(), ".")
	return parts[len(parts)-1]
}
