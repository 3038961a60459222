package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/application"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/grpcclient"
	"github.com/wyfcoding/cryptoquote/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubRepo struct {
	latest map[string]*domain.CryptoQuote
	err    error
}

func (r *stubRepo) Save(context.Context, *domain.CryptoQuote) error { return nil }

func (r *stubRepo) GetLatest(_ context.Context, pair string) (*domain.CryptoQuote, error) {
	return r.latest[pair], r.err
}

func (r *stubRepo) GetHistory(context.Context, string, int64, int64) ([]*domain.CryptoQuote, error) {
	return nil, nil
}

func (r *stubRepo) DeleteExpired(context.Context, int64) (int64, error) { return 0, nil }

func newClient(t *testing.T, repo *stubRepo) *CryptoQuoteServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.GRPCRecoveryInterceptor(),
		middleware.GRPCLoggingInterceptor(),
	))
	RegisterCryptoQuoteServiceServer(srv, NewCryptoQuoteHandler(application.NewCryptoQuoteApplicationService(repo)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpcclient.NewClient(grpcclient.Config{Target: "passthrough:///bufnet"},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewCryptoQuoteServiceClient(conn)
}

func TestGetCryptoQuote(t *testing.T) {
	repo := &stubRepo{latest: map[string]*domain.CryptoQuote{
		"BTC/USD": {
			Pair: "BTC/USD",
			Quote: domain.NewCryptoQuoteResult(
				domain.WithAsk(decimal.RequireFromString("100.5")),
				domain.WithDateTime("2024-01-01T00:00:00Z"),
			),
		},
	}}
	client := newClient(t, repo)

	got, err := client.GetCryptoQuote(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("GetCryptoQuote() error = %v", err)
	}
	fields := got.GetFields()
	if fields["status"].GetStringValue() != "SUCCESS" {
		t.Errorf("status = %v", fields["status"])
	}
	if fields["ask"].GetNumberValue() != 100.5 {
		t.Errorf("ask = %v", fields["ask"])
	}
	if fields["dateTime"].GetStringValue() != "2024-01-01T00:00:00Z" {
		t.Errorf("dateTime = %v", fields["dateTime"])
	}
	if _, ok := fields["bid"]; ok {
		t.Error("absent bid must not appear in the response")
	}
}

func TestGetCryptoQuoteStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		repo *stubRepo
		pair string
		want codes.Code
	}{
		{"empty pair", &stubRepo{}, "", codes.InvalidArgument},
		{"not found", &stubRepo{}, "DOGE/USD", codes.NotFound},
		{"repository failure", &stubRepo{err: errors.New("db down")}, "BTC/USD", codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClient(t, tt.repo).GetCryptoQuote(context.Background(), tt.pair)
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}
