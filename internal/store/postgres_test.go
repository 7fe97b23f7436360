package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestPostgresLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer pg.Close()

	name := fmt.Sprintf("svc-%d", time.Now().UnixNano())
	svc, err := pg.CreateService(ctx, name, "0xabc0000000000000000000000000000000000001", "http://svc.local/api", "2.5")
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if svc.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	got, err := pg.GetService(ctx, svc.ID)
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if got.Name != name {
		t.Fatalf("unexpected service: %#v", got)
	}

	hash := fmt.Sprintf("0xhash-%d", time.Now().UnixNano())
	att, err := pg.AppendAttempt(ctx, svc.ID, hash, StatusSuccess)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if att.CreatedAt.IsZero() {
		t.Fatalf("expected server-assigned timestamp")
	}

	ok, err := pg.HasSuccess(ctx, svc.ID, hash)
	if err != nil {
		t.Fatalf("has success: %v", err)
	}
	if !ok {
		t.Fatalf("expected success row")
	}

	// The partial unique index permits one success per (service, hash).
	if _, err := pg.AppendAttempt(ctx, svc.ID, hash, StatusSuccess); err == nil {
		t.Fatalf("expected duplicate success insert to fail")
	}

	recent, err := pg.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) == 0 || recent[0].ServiceName == "" {
		t.Fatalf("expected joined rows, got %#v", recent)
	}
}
