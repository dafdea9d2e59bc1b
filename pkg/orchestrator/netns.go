package orchestrator

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// ipFromNetNS returns the first non-loopback IPv4 address visible
// inside the network namespace of the process identified by pid. This
// is the CNI-assigned container address the Gateway later dials.
//
// Entering another process's netns requires locking the calling
// goroutine to its OS thread for the duration of the switch — the
// namespace change is per-thread, not per-process.
func ipFromNetNS(pid int) (string, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNS, err := os.Open("/proc/self/ns/net")
	if err != nil {
		return "", fmt.Errorf("open current netns: %w", err)
	}
	defer origNS.Close()

	targetNS, err := os.Open(fmt.Sprintf("/proc/%d/ns/net", pid))
	if err != nil {
		return "", fmt.Errorf("open target netns: %w", err)
	}
	defer targetNS.Close()

	if err := unix.Setns(int(targetNS.Fd()), unix.CLONE_NEWNET); err != nil {
		return "", fmt.Errorf("enter target netns: %w", err)
	}
	defer unix.Setns(int(origNS.Fd()), unix.CLONE_NEWNET)

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces in target netns: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Name == "lo" || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 != nil {
				return ip4.String(), nil
			}
		}
	}

	return "", fmt.Errorf("no IP address found in netns of pid %d", pid)
}
