package providers

import (
	"testing"
)

func TestNewRedisProvider(t *testing.T) {
	client := NewRedisProvider("localhost:6379", "password")

	if client == nil {
		t.Fatal("Expected redis client to be non-nil")
	}

	defer client.Close()

	opts := client.Options()
	if opts.Addr != "localhost:6379" {
		t.Errorf("Expected addr 'localhost:6379', got %s", opts.Addr)
	}
	if opts.Password != "password" {
		t.Errorf("Expected password to be set")
	}
}
