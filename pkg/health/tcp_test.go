package health

import (
	"context"
	"net"
	"testing"
)

func TestTCPChecker_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	checker := NewTCPChecker(ln.Addr().String())
	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("expected healthy, got: %s", result.Message)
	}
	if checker.Type() != CheckTypeTCP {
		t.Errorf("expected type %s, got %s", CheckTypeTCP, checker.Type())
	}
}

func TestTCPChecker_Unreachable(t *testing.T) {
	checker := NewTCPChecker("127.0.0.1:1")
	result := checker.Check(context.Background())

	if result.Healthy {
		t.Error("expected unhealthy for a closed port")
	}
}

func TestStatusAppliesHysteresis(t *testing.T) {
	status := NewStatus()
	config := Config{Retries: 3}

	for i := 0; i < 2; i++ {
		status.Update(Result{Healthy: false}, config)
	}
	if !status.Healthy {
		t.Error("expected still healthy before reaching retry threshold")
	}

	status.Update(Result{Healthy: false}, config)
	if status.Healthy {
		t.Error("expected unhealthy after reaching retry threshold")
	}

	status.Update(Result{Healthy: true}, config)
	if !status.Healthy {
		t.Error("expected healthy again after a single success")
	}
}
