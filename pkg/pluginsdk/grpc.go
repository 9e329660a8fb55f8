// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package pluginsdk

import (
	"context"
	"encoding/json"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// ServiceName is the gRPC service plugins register.
const ServiceName = "eva.plugin.v1.Plugin"

// CodecName is the gRPC content subtype used by the plugin service.
const CodecName = "eva-json"

// jsonCodec marshals the plugin messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type hooksRequest struct{}

type hooksResponse struct {
	Hooks []string `json:"hooks"`
}

type enableRequest struct{}

type enableResponse struct{}

// server is the gRPC face of a Handler.
type server interface {
	hooks(ctx context.Context, req *hooksRequest) (*hooksResponse, error)
	handleEvent(ctx context.Context, req *Event) (*Result, error)
	enable(ctx context.Context, req *enableRequest) (*enableResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Hooks", Handler: unary("Hooks", func(s server, ctx context.Context, req *hooksRequest) (*hooksResponse, error) {
			return s.hooks(ctx, req)
		})},
		{MethodName: "HandleEvent", Handler: unary("HandleEvent", func(s server, ctx context.Context, req *Event) (*Result, error) {
			return s.handleEvent(ctx, req)
		})},
		{MethodName: "Enable", Handler: unary("Enable", func(s server, ctx context.Context, req *enableRequest) (*enableResponse, error) {
			return s.enable(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pluginsdk",
}

// unary builds a grpc method handler for one request type.
func unary[Req, Resp any](method string, call func(s server, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		s, ok := srv.(server)
		if !ok {
			return nil, errors.New("pluginsdk: unexpected service implementation")
		}
		if interceptor == nil {
			return call(s, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
			return call(s, ctx, r.(*Req))
		})
	}
}

// RegisterServer registers h on s.
func RegisterServer(s *grpc.Server, h Handler) {
	s.RegisterService(&serviceDesc, &handlerServer{handler: h})
}

// handlerServer adapts Handler to the gRPC service.
type handlerServer struct {
	handler Handler
}

func (a *handlerServer) hooks(_ context.Context, _ *hooksRequest) (*hooksResponse, error) {
	return &hooksResponse{Hooks: a.handler.Hooks()}, nil
}

func (a *handlerServer) handleEvent(ctx context.Context, req *Event) (*Result, error) {
	res, err := a.handler.HandleEvent(ctx, *req)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (a *handlerServer) enable(ctx context.Context, _ *enableRequest) (*enableResponse, error) {
	if e, ok := a.handler.(Enabler); ok {
		if err := e.Enable(ctx); err != nil {
			return nil, err
		}
	}
	return &enableResponse{}, nil
}

// Client calls a plugin's gRPC service from the host.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(CodecName))
}

// Hooks returns the hooks the plugin subscribes to.
func (c *Client) Hooks(ctx context.Context) ([]string, error) {
	var resp hooksResponse
	if err := c.invoke(ctx, "Hooks", &hooksRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Hooks, nil
}

// HandleEvent delivers one event.
func (c *Client) HandleEvent(ctx context.Context, event Event) (Result, error) {
	var resp Result
	if err := c.invoke(ctx, "HandleEvent", &event, &resp); err != nil {
		return Result{}, err
	}
	return resp, nil
}

// Enable runs the plugin's Enabler, if it has one.
func (c *Client) Enable(ctx context.Context) error {
	return c.invoke(ctx, "Enable", &enableRequest{}, &enableResponse{})
}

// GRPCPlugin implements go-plugin's Plugin interface for gRPC.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is used by the plugin side only.
	Impl Handler
}

// GRPCServer registers the plugin server (called by plugin process).
func (p *GRPCPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("pluginsdk: handler is nil")
	}
	RegisterServer(s, p.Impl)
	return nil
}

// GRPCClient returns a *Client (called by host process).
func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return NewClient(c), nil
}

// PluginMap is the set of plugins the host can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	PluginName: &GRPCPlugin{},
}
