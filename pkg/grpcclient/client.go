// Package grpcclient 提供 gRPC 客户端连接工厂，带请求超时、重试与 trace ID 透传
package grpcclient

import (
	"context"
	"time"

	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"github.com/wyfcoding/cryptoquote/pkg/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TraceIDMetadataKey 透传 trace ID 的 metadata key，与服务端日志拦截器一致
const TraceIDMetadataKey = "x-trace-id"

// Config gRPC 客户端配置
type Config struct {
	// 目标地址
	Target string
	// 请求超时（秒），0 表示不限制
	RequestTimeout int
	// 最大重试次数
	MaxRetries int
	// 重试延迟（毫秒）
	RetryDelay int
	// Keepalive 间隔（秒），0 表示关闭
	KeepaliveInterval int
}

// NewClient 创建 gRPC 客户端连接，extra 追加在默认选项之后
func NewClient(cfg Config, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(
			traceUnaryInterceptor(),
			retryUnaryInterceptor(cfg),
		),
	}

	if cfg.KeepaliveInterval > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(cfg.KeepaliveInterval) * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}))
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		logger.Error(context.Background(), "Failed to create gRPC client", "target", cfg.Target, "error", err)
		return nil, err
	}
	return conn, nil
}

// traceUnaryInterceptor 将 context 中的 trace ID 写入 outgoing metadata
func traceUnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if traceID := logger.TraceID(ctx); traceID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, TraceIDMetadataKey, traceID)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// retryUnaryInterceptor 对可重试状态码重试
func retryUnaryInterceptor(cfg Config) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RequestTimeout)*time.Second)
			defer cancel()
		}

		maxRetries := cfg.MaxRetries
		if maxRetries < 0 {
			maxRetries = 0
		}
		delay := time.Duration(cfg.RetryDelay) * time.Millisecond
		policy := retry.Policy{MaxAttempts: maxRetries + 1, InitialDelay: delay, MaxDelay: 10 * delay}

		start := time.Now()
		lastErr := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
			if attempt > 0 {
				logger.Debug(ctx, "Retrying gRPC request", "method", method, "attempt", attempt+1)
			}
			err := invoker(ctx, method, req, reply, cc, opts...)
			if err != nil && !shouldRetry(status.Code(err)) {
				return retry.Permanent(err)
			}
			return err
		})

		if lastErr != nil {
			logger.Warn(ctx, "gRPC request failed",
				"method", method,
				"duration", time.Since(start),
				"error", lastErr,
			)
		}
		return lastErr
	}
}

// shouldRetry 判断是否应该重试
func shouldRetry(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
