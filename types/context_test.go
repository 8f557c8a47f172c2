package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := TraceID(ctx); ok {
		t.Fatalf("empty context must not carry a trace ID")
	}

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithRequestID(ctx, "req")
	if got, ok := RequestID(ctx); !ok || got != "req" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithTenantID(ctx, "tenant")
	if got, ok := TenantID(ctx); !ok || got != "tenant" {
		t.Fatalf("TenantID mismatch: %v %v", got, ok)
	}

	ctx = WithUserID(ctx, "user")
	if got, ok := UserID(ctx); !ok || got != "user" {
		t.Fatalf("UserID mismatch: %v %v", got, ok)
	}

	ctx = WithExecutionID(ctx, "exec")
	if got, ok := ExecutionID(ctx); !ok || got != "exec" {
		t.Fatalf("ExecutionID mismatch: %v %v", got, ok)
	}

	ctx = WithUserID(ctx, "")
	if _, ok := UserID(ctx); ok {
		t.Fatalf("empty user ID must report false")
	}
}
