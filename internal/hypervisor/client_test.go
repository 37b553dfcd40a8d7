package hypervisor

import (
	"context"
	"testing"
	"time"
)

func TestConnect_BadSocket(t *testing.T) {
	if _, err := Connect("/nonexistent/libvirt-sock", 100*time.Millisecond); err == nil {
		t.Error("Connect() to missing socket error = nil, want error")
	}
}

func TestConnectWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ConnectWithContext(ctx, "/nonexistent/libvirt-sock", time.Second); err == nil {
		t.Error("ConnectWithContext() with cancelled context error = nil, want error")
	}
}

func TestClose_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestPing_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.Ping(); err == nil {
		t.Error("Ping() on zero client error = nil, want error")
	}
}
