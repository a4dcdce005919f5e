package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName matches the method paths used below; there is no .proto
// file behind it, since this package hand-writes the dispatch table
// protoc-gen-go-grpc would otherwise generate.
const serviceName = "htraced.RPC"

// Server is the business-logic interface the RPC adapter dispatches to,
// implemented by the daemon's wiring of ingest.Ingestor and
// query.Executor.
type Server interface {
	WriteSpans(ctx context.Context, req *WriteSpansRequest) (*WriteSpansResponse, error)
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
	FindSpan(ctx context.Context, req *FindSpanRequest) (*FindSpanResponse, error)
	FindChildren(ctx context.Context, req *FindChildrenRequest) (*FindChildrenResponse, error)
}

func writeSpansHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(WriteSpansRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).WriteSpans(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/WriteSpans"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).WriteSpans(ctx, req.(*WriteSpansRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func queryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Query"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func findSpanHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FindSpanRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).FindSpan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/FindSpan"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).FindSpan(ctx, req.(*FindSpanRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func findChildrenHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FindChildrenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).FindChildren(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/FindChildren"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).FindChildren(ctx, req.(*FindChildrenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is the dispatch table grpc.Server uses to route incoming
// calls to Server's methods; protoc-gen-go-grpc would normally emit
// this alongside the .pb.go types.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WriteSpans", Handler: writeSpansHandler},
		{MethodName: "Query", Handler: queryHandler},
		{MethodName: "FindSpan", Handler: findSpanHandler},
		{MethodName: "FindChildren", Handler: findChildrenHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "htraced/rpc.proto",
}

// RegisterServer attaches srv to s using the forced binary codec, so no
// protobuf descriptor or reflection service is required.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

// NewServer constructs a grpc.Server pre-configured to use this
// package's codec for every call.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(Codec)}, opts...)
	return grpc.NewServer(opts...)
}

// Client is the stub side of Server, dispatched over a *grpc.ClientConn
// forced onto this package's codec.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps cc. Dial cc with DialOptions() to get the forced
// codec; transport credentials are supplied by the caller.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

// DialOptions returns the grpc.DialOption set a client must use to
// reach an RPC server registered with RegisterServer.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec))}
}

func (c *Client) WriteSpans(ctx context.Context, req *WriteSpansRequest) (*WriteSpansResponse, error) {
	out := new(WriteSpansResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/WriteSpans", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	out := new(QueryResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Query", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindSpan(ctx context.Context, req *FindSpanRequest) (*FindSpanResponse, error) {
	out := new(FindSpanResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/FindSpan", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindChildren(ctx context.Context, req *FindChildrenRequest) (*FindChildrenResponse, error) {
	out := new(FindChildrenResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/FindChildren", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
