package core

import (
	"context"
	"os"
	"sync"
	"testing"
)

func resetRegionState(t *testing.T) {
	t.Helper()
	regionOnce = sync.Once{}
	regionValue = ""
	t.Cleanup(func() {
		regionOnce = sync.Once{}
		regionValue = ""
	})
}

func TestResolveRegionEnvOverride(t *testing.T) {
	resetRegionState(t)
	_ = os.Setenv("REGION", "eu-west")
	defer os.Unsetenv("REGION")

	got := ResolveRegion(context.Background())
	if got != "eu-west" {
		t.Fatalf("ResolveRegion = %q, want eu-west", got)
	}
}

func TestResolveRegionCachesAcrossCalls(t *testing.T) {
	resetRegionState(t)
	_ = os.Setenv("REGION", "ap-south")
	defer os.Unsetenv("REGION")

	first := ResolveRegion(context.Background())
	_ = os.Setenv("REGION", "different-value-ignored")
	second := ResolveRegion(context.Background())
	if first != second {
		t.Fatalf("ResolveRegion is not cached: first=%q second=%q", first, second)
	}
}
