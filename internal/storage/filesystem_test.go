package storage

import (
	"context"
	"testing"
)

func TestWriteRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "library/u1/seq-1/shot-01.mp4", []byte("frames"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "library/u1/seq-1/shot-01.mp4" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "frames" {
		t.Fatalf("data = %q", data)
	}
}

func TestSanitizeKeyRejectsEscape(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"", "../outside", "a/../../b"} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) accepted invalid key", key)
		}
	}
}
