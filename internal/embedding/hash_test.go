package embedding

import (
	"context"
	"testing"
)

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(64)

	t.Run("deterministic", func(t *testing.T) {
		a, err := e.Embed(ctx, "the sword breaks at the gate", TaskDocument)
		if err != nil {
			t.Fatalf("embedding: %v", err)
		}
		b, err := e.Embed(ctx, "the sword breaks at the gate", TaskQuery)
		if err != nil {
			t.Fatalf("embedding: %v", err)
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("vectors differ at %d", i)
			}
		}
	})

	t.Run("unit norm", func(t *testing.T) {
		vec, err := e.Embed(ctx, "ash and ember", TaskDocument)
		if err != nil {
			t.Fatalf("embedding: %v", err)
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm < 0.99 || norm > 1.01 {
			t.Fatalf("expected unit norm, got %g", norm)
		}
	})

	t.Run("empty text yields zero vector", func(t *testing.T) {
		vec, err := e.Embed(ctx, "", TaskDocument)
		if err != nil {
			t.Fatalf("embedding: %v", err)
		}
		for _, v := range vec {
			if v != 0 {
				t.Fatalf("expected zero vector")
			}
		}
	})
}
