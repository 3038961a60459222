package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/application"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CryptoQuoteHandler gRPC 处理器
type CryptoQuoteHandler struct {
	quoteService *application.CryptoQuoteApplicationService
}

// NewCryptoQuoteHandler 创建 gRPC 处理器
func NewCryptoQuoteHandler(quoteService *application.CryptoQuoteApplicationService) *CryptoQuoteHandler {
	return &CryptoQuoteHandler{quoteService: quoteService}
}

// GetCryptoQuote 获取最新行情，响应结构与 HTTP 接口的 JSON 一致
func (h *CryptoQuoteHandler) GetCryptoQuote(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	result, err := h.quoteService.GetCryptoQuote(ctx, &application.GetCryptoQuoteRequest{Pair: req.GetValue()})
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode quote")
	}
	// 数值在 Struct 中以 double 表示
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode quote")
	}
	return out, nil
}

func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrPairRequired):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrQuoteNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		logger.Error(ctx, "GetCryptoQuote failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
