package store

import (
	"context"
	"testing"

	"github.com/rewear/rewear/internal/db"
)

func TestJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret1, err := JWTSecret(ctx, database, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	secret2, err := JWTSecret(ctx, database, "")
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestJWTSecret_ConfiguredWins(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret, err := JWTSecret(ctx, database, "from-config")
	if err != nil {
		t.Fatal(err)
	}
	if secret != "from-config" {
		t.Fatalf("expected configured secret, got %q", secret)
	}

	if _, ok, _ := GetSetting(ctx, database, settingJWTSecret); ok {
		t.Error("configured secret should not be persisted")
	}
}
