package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/cryptoquote/pkg/config"
)

func TestClassOf(t *testing.T) {
	tests := map[string]Class{
		http.MethodGet:     ClassRead,
		http.MethodHead:    ClassRead,
		http.MethodOptions: ClassRead,
		http.MethodPost:    ClassWrite,
		http.MethodDelete:  ClassWrite,
	}
	for method, want := range tests {
		if got := ClassOf(method); got != want {
			t.Errorf("ClassOf(%s) = %s, want %s", method, got, want)
		}
	}
}

func TestQuotasFromConfig(t *testing.T) {
	q := QuotasFromConfig(config.RateLimitConfig{QPS: 100, Burst: 200})
	if q[ClassWrite] != q[ClassRead] {
		t.Errorf("write quota %+v should follow read quota %+v", q[ClassWrite], q[ClassRead])
	}

	q = QuotasFromConfig(config.RateLimitConfig{QPS: 100, Burst: 200, WriteQPS: 5})
	if w := q[ClassWrite]; w.Rate != 5 || w.Burst != 5 || w.Period != time.Second {
		t.Errorf("write quota = %+v", w)
	}
	if r := q[ClassRead]; r.Rate != 100 || r.Burst != 200 {
		t.Errorf("read quota = %+v", r)
	}
}

func TestKey(t *testing.T) {
	l := NewRedisLimiter(redis.NewClient(&redis.Options{}), "", nil)
	if got := l.Key(ClassWrite, "10.0.0.1"); got != "ratelimit:write:10.0.0.1" {
		t.Errorf("Key() = %q", got)
	}
}

func TestAllowWithoutQuota(t *testing.T) {
	// 未配置的类别不访问 Redis
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})
	defer client.Close()

	l := NewRedisLimiter(client, "test", Quotas{})
	d, err := l.Allow(context.Background(), ClassRead, "10.0.0.1")
	if err != nil || !d.Allowed {
		t.Errorf("Allow() = %+v, %v", d, err)
	}
}

func TestRedisLimiterSeparatesClasses(t *testing.T) {
	addr := os.Getenv("CRYPTOQUOTE_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	l := NewRedisLimiter(client, "test-"+uuid.NewString(), QuotasFromConfig(config.RateLimitConfig{
		QPS: 10, Burst: 10, WriteQPS: 1, WriteBurst: 1,
	}))
	subject := "10.0.0.1"

	first, err := l.Allow(ctx, ClassWrite, subject)
	if err != nil || !first.Allowed {
		t.Fatalf("first write = %+v, %v", first, err)
	}
	second, err := l.Allow(ctx, ClassWrite, subject)
	if err != nil || second.Allowed || second.RetryAfter <= 0 {
		t.Errorf("second write = %+v, %v", second, err)
	}
	read, err := l.Allow(ctx, ClassRead, subject)
	if err != nil || !read.Allowed || read.Limit != 10 {
		t.Errorf("read after exhausted writes = %+v, %v", read, err)
	}
}
