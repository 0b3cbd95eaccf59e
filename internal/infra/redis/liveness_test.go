package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLivenessStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewLivenessStore(client, time.Minute)

	store.MarkAlive("duel-1")
	if !mr.Exists("duel:session:duel-1") {
		t.Fatalf("expected liveness key to be set")
	}

	store.Clear("duel-1")
	if mr.Exists("duel:session:duel-1") {
		t.Fatalf("expected liveness key to be removed")
	}
}
