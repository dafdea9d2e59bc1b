package orchestrator

import (
	"fmt"
	"os/exec"
)

// RestrictIngressToGateway installs an iptables rule that only lets the
// Gateway's address reach the worker's terminal port: a DROP-by-default
// ACCEPT-from-Gateway rule scoped to one container IP, rather than a
// DNAT publishing a host port outward.
func RestrictIngressToGateway(containerIP, gatewayIP string, ttydPort int) error {
	// Allow the Gateway.
	if err := runIPTables([]string{
		"-A", "FORWARD",
		"-d", containerIP, "-p", "tcp", "--dport", fmt.Sprintf("%d", ttydPort),
		"-s", gatewayIP,
		"-j", "ACCEPT",
	}); err != nil {
		return fmt.Errorf("orchestrator: allow gateway ingress: %w", err)
	}

	// Drop everyone else.
	if err := runIPTables([]string{
		"-A", "FORWARD",
		"-d", containerIP, "-p", "tcp", "--dport", fmt.Sprintf("%d", ttydPort),
		"-j", "DROP",
	}); err != nil {
		return fmt.Errorf("orchestrator: drop other ingress: %w", err)
	}

	return nil
}

// ClearIngressPolicy removes the rules RestrictIngressToGateway added
// for containerIP, best-effort.
func ClearIngressPolicy(containerIP, gatewayIP string, ttydPort int) {
	_ = runIPTables([]string{
		"-D", "FORWARD",
		"-d", containerIP, "-p", "tcp", "--dport", fmt.Sprintf("%d", ttydPort),
		"-s", gatewayIP,
		"-j", "ACCEPT",
	})
	_ = runIPTables([]string{
		"-D", "FORWARD",
		"-d", containerIP, "-p", "tcp", "--dport", fmt.Sprintf("%d", ttydPort),
		"-j", "DROP",
	})
}

func runIPTables(args []string) error {
	cmd := exec.Command("iptables", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("iptables %v: %w (%s)", args, err, string(out))
	}
	return nil
}
