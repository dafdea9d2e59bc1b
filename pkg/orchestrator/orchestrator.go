package orchestrator

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/contrib/seccomp"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"

	"github.com/arakoodev/cliscale/pkg/types"
)

// DefaultSocketPath is the default containerd socket.
const DefaultSocketPath = "/run/containerd/containerd.sock"

// ttydPort is the fixed terminal port every worker exposes.
const ttydPort = 7681

// Driver submits and tears down worker containers via containerd:
// Submit, ResolveEndpoint, BestEffortDelete.
type Driver struct {
	client      *containerd.Client
	gatewayAddr string
}

// New connects to the containerd socket. gatewayAddr is the Gateway's
// network address; every worker's terminal port is firewalled to admit
// ingress only from it once the container's IP is known.
func New(socketPath, gatewayAddr string) (*Driver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: connect to containerd: %w", err)
	}
	return &Driver{client: client, gatewayAddr: gatewayAddr}, nil
}

// Close releases the containerd client connection.
func (d *Driver) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

// namespaceFor isolates every session in its own containerd namespace.
func namespaceFor(sessionID string) string {
	return "session-" + sessionID
}

// Submit pulls the configured image and starts one worker container for
// the session, injecting the environment contract and applying the
// hardening required: non-root UID/GID, all capabilities dropped,
// read-only rootfs where the image allows it, and containerd's default
// seccomp profile. It returns the generated workerName (the container
// ID) and, when ActiveDeadline or CollectAfterFinish is set on spec,
// starts a background monitor that enforces them (see
// monitorLifecycle).
func (d *Driver) Submit(ctx context.Context, spec *types.WorkerSpec) (workerName string, err error) {
	ns := namespaceFor(spec.SessionID)
	ctx = namespaces.WithNamespace(ctx, ns)

	image, err := d.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
	if err != nil {
		return "", fmt.Errorf("orchestrator: pull %s: %w", spec.Image, err)
	}

	workerName = "worker-" + uuid.NewString()

	env := []string{
		"CODE_URL=" + spec.CodeURL,
		"COMMAND=" + spec.Command,
		fmt.Sprintf("TTYD_PORT=%d", spec.TTYDPort),
		fmt.Sprintf("EXIT_ON_JOB=%t", spec.ExitOnJob),
	}
	if spec.InstallCmd != "" {
		env = append(env, "INSTALL_CMD="+spec.InstallCmd)
	}
	if spec.Prompt != "" {
		env = append(env, "CLAUDE_PROMPT="+spec.Prompt)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
		oci.WithUIDGID(uint32(workerUID), uint32(workerGID)),
		oci.WithCapabilities(nil),
		oci.WithRootFSReadonly(),
		seccomp.WithDefaultProfile(),
	}

	container, err := d.client.NewContainer(
		ctx,
		workerName,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(workerName+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("orchestrator: create container: %w", err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return "", fmt.Errorf("orchestrator: create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return "", fmt.Errorf("orchestrator: start task: %w", err)
	}

	if spec.ActiveDeadline > 0 || spec.CollectAfterFinish > 0 {
		go d.monitorLifecycle(ns, container, task, spec.ActiveDeadline, spec.CollectAfterFinish)
	}

	return workerName, nil
}

// monitorLifecycle enforces the two lifecycle knobs Submit otherwise
// only records: it force-kills the task if it's still running once
// activeDeadline elapses, then waits collectAfterFinish past the
// task's exit — whether that exit was the job finishing on its own or
// the deadline kill above — before deleting the container. This is
// the Driver-side safety net for a worker whose session the Pruner
// hasn't (yet) expired in the Store; BestEffortDelete remains the
// primary teardown path on normal session end and simply finds
// nothing left to do if this monitor already collected the container.
func (d *Driver) monitorLifecycle(ns string, container containerd.Container, task containerd.Task, activeDeadline, collectAfterFinish time.Duration) {
	ctx := namespaces.WithNamespace(context.Background(), ns)

	statusC, err := task.Wait(ctx)
	if err != nil {
		return
	}

	if activeDeadline > 0 {
		select {
		case <-statusC:
		case <-time.After(activeDeadline):
			_ = task.Kill(ctx, syscall.SIGKILL)
			<-statusC
		}
	} else {
		<-statusC
	}

	if collectAfterFinish > 0 {
		time.Sleep(collectAfterFinish)
	}

	_, _ = task.Delete(ctx)
	_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
}

// workerUID/workerGID are the fixed non-root identity every worker
// container runs as.
const (
	workerUID = 65532
	workerGID = 65532
)

// ResolveEndpoint polls the worker's network namespace for an assigned
// IP, combining it with the fixed terminal port, until deadline elapses.
// It returns a Pending WorkerEndpoint if no IP is assigned in time. Once
// an IP is known, it restricts ingress on ttydPort to the Gateway before
// handing the endpoint back, so the window between "container has an IP"
// and "container is firewalled" never carries live traffic.
func (d *Driver) ResolveEndpoint(ctx context.Context, sessionID, workerName string, ttydPort int, deadline time.Duration) (types.WorkerEndpoint, error) {
	ns := namespaceFor(sessionID)
	ctx = namespaces.WithNamespace(ctx, ns)

	deadlineCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		ip, err := d.containerIP(deadlineCtx, workerName)
		if err == nil && ip != "" {
			if err := RestrictIngressToGateway(ip, d.gatewayAddr, ttydPort); err != nil {
				return types.WorkerEndpoint{}, fmt.Errorf("orchestrator: apply network policy: %w", err)
			}
			return types.WorkerEndpoint{HostPort: fmt.Sprintf("%s:%d", ip, ttydPort)}, nil
		}

		select {
		case <-deadlineCtx.Done():
			return types.WorkerEndpoint{Pending: true}, nil
		case <-ticker.C:
		}
	}
}

// containerIP finds the container's task and inspects its network
// namespace for the address assigned by the CNI plugin; see netns.go.
func (d *Driver) containerIP(ctx context.Context, containerID string) (string, error) {
	container, err := d.client.LoadContainer(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("load container: %w", err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("load task: %w", err)
	}
	return ipFromNetNS(int(task.Pid()))
}

// BestEffortDelete stops and deletes the worker container, swallowing
// any error beyond logging at the call site — the monitorLifecycle
// goroutine started by Submit is the safety net if this fails.
func (d *Driver) BestEffortDelete(ctx context.Context, sessionID, workerName string) error {
	ns := namespaceFor(sessionID)
	ctx = namespaces.WithNamespace(ctx, ns)

	container, err := d.client.LoadContainer(ctx, workerName)
	if err != nil {
		return nil // already gone
	}

	if ip, err := d.containerIP(ctx, workerName); err == nil && ip != "" {
		ClearIngressPolicy(ip, d.gatewayAddr, ttydPort)
	}

	if task, err := container.Task(ctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_ = task.Kill(stopCtx, syscall.SIGTERM)
		statusC, waitErr := task.Wait(stopCtx)
		if waitErr == nil {
			select {
			case <-statusC:
			case <-stopCtx.Done():
			}
		}
		_, _ = task.Delete(ctx)
		cancel()
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("orchestrator: delete container %s: %w", workerName, err)
	}
	return nil
}
