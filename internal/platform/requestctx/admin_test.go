package requestctx

import (
	"context"
	"testing"
)

func TestWithAdminRoundTrip(t *testing.T) {
	ctx := WithAdmin(context.Background(), AdminIdentity{AdminID: "adm-1", Role: "operator"})
	identity, ok := AdminFromContext(ctx)
	if !ok {
		t.Fatal("expected admin identity in context")
	}
	if identity.AdminID != "adm-1" || identity.Role != "operator" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestAdminFromContextMissing(t *testing.T) {
	if _, ok := AdminFromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
	if _, ok := AdminFromContext(nil); ok {
		t.Fatal("expected no identity for nil context")
	}
}
