// Package grpc 包含 gRPC 服务描述与处理器实现
// 请求与响应使用 protobuf 知名类型，无需生成代码
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName gRPC 服务名
	ServiceName = "cryptoquote.v1.CryptoQuoteService"
	// FullMethodGetCryptoQuote GetCryptoQuote 的完整方法名
	FullMethodGetCryptoQuote = "/" + ServiceName + "/GetCryptoQuote"
)

// CryptoQuoteServiceServer 服务端接口
type CryptoQuoteServiceServer interface {
	GetCryptoQuote(ctx context.Context, pair *wrapperspb.StringValue) (*structpb.Struct, error)
}

// CryptoQuoteServiceDesc 服务描述
var CryptoQuoteServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CryptoQuoteServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetCryptoQuote",
			Handler:    getCryptoQuoteHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cryptoquote/v1/crypto_quote.proto",
}

// RegisterCryptoQuoteServiceServer 注册服务
func RegisterCryptoQuoteServiceServer(s grpc.ServiceRegistrar, srv CryptoQuoteServiceServer) {
	s.RegisterService(&CryptoQuoteServiceDesc, srv)
}

func getCryptoQuoteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CryptoQuoteServiceServer).GetCryptoQuote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethodGetCryptoQuote,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CryptoQuoteServiceServer).GetCryptoQuote(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// CryptoQuoteServiceClient 客户端
type CryptoQuoteServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCryptoQuoteServiceClient 创建客户端
func NewCryptoQuoteServiceClient(cc grpc.ClientConnInterface) *CryptoQuoteServiceClient {
	return &CryptoQuoteServiceClient{cc: cc}
}

// GetCryptoQuote 获取最新行情
func (c *CryptoQuoteServiceClient) GetCryptoQuote(ctx context.Context, pair string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethodGetCryptoQuote, wrapperspb.String(pair), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
