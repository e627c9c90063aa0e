package memory_test

import (
	"context"
	"testing"
	"time"

	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/healthtwin-labs/healthtwin/config"
	"github.com/healthtwin-labs/healthtwin/internal/memory"
)

func TestRedisDurableStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx)
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	durable, err := memory.NewRedisDurableStore(ctx, config.RedisConfig{
		Host:    host,
		Port:    port.Port(),
		Timeout: 5 * time.Second,
	}, time.Hour)
	if err != nil {
		t.Fatalf("durable store: %v", err)
	}

	sess := &memory.Session{ID: "it-1", LastUpdatedAt: time.Now()}
	sess.AppendMessage(memory.ChatMessage{ID: "m1", Role: memory.RoleUser, Content: "slept badly", CreatedAt: time.Now()}, 16)
	sess.AddUserFact("vegetarian")
	sess.AddAdaptationNote("suggest earlier bedtime")

	if err := durable.Put(ctx, sess); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := durable.Get(ctx, "it-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "slept badly" {
		t.Fatalf("messages did not survive the round trip: %+v", got.Messages)
	}
	if len(got.UserFacts) != 1 || got.UserFacts[0] != "vegetarian" {
		t.Fatalf("user facts did not survive the round trip: %+v", got.UserFacts)
	}

	if err := durable.Delete(ctx, "it-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := durable.Get(ctx, "it-1"); err != memory.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
