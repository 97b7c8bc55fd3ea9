package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const gatewayCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies a directory exists and is readable,
// writable, and traversable by the daemon's user.
func CheckDirectoryAccess(name, path string) Result {
	result := Result{Name: name}
	if path == "" {
		result.Detail = "path is not configured"
		return result
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Detail = fmt.Sprintf("%s (error: does not exist)", path)
		} else {
			result.Detail = fmt.Sprintf("%s (error: %v)", path, err)
		}
		return result
	}
	if !info.IsDir() {
		result.Detail = fmt.Sprintf("%s (error: not a directory)", path)
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("%s (error: insufficient permissions)", path)
		return result
	}

	result.Passed = true
	result.Detail = path
	return result
}

// CheckDiskSpace verifies the filesystem holding path has at least minBytes
// free. Staging needs room for one source file plus its extracted audio and
// frames, so callers pass the maximum accepted upload size as the floor.
func CheckDiskSpace(name, path string, minBytes int64) Result {
	result := Result{Name: name}
	if path == "" {
		result.Detail = "path is not configured"
		return result
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		result.Detail = fmt.Sprintf("%s (error: %v)", path, err)
		return result
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)
	if minBytes > 0 && free < minBytes {
		result.Detail = fmt.Sprintf("%s free on %s, need at least %s", formatBytes(free), path, formatBytes(minBytes))
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%s free on %s", formatBytes(free), path)
	return result
}

// CheckStore verifies a database store answers its health probe. The store's
// Health method bounds its own timeout, so no extra deadline is applied here.
func CheckStore(ctx context.Context, name string, store HealthChecker) Result {
	result := Result{Name: name}
	if store == nil {
		result.Detail = "store is not open"
		return result
	}
	if err := store.Health(ctx); err != nil {
		result.Detail = err.Error()
		return result
	}

	result.Passed = true
	result.Detail = "reachable"
	return result
}

// CheckGateway verifies the inference gateway answers its health endpoint.
// The gateway is optional at boot: analysis stages fail with transient
// errors and retry until it comes back, so startup does not block on it.
func CheckGateway(ctx context.Context, gateway HealthChecker) Result {
	result := Result{Name: "Inference gateway", Optional: true}
	if gateway == nil {
		result.Detail = "client is not configured"
		return result
	}

	checkCtx, cancel := context.WithTimeout(ctx, gatewayCheckTimeout)
	defer cancel()
	if err := gateway.Health(checkCtx); err != nil {
		result.Detail = summarizeGatewayError(err)
		return result
	}

	result.Passed = true
	result.Detail = "reachable"
	return result
}

func summarizeGatewayError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out (inference gateway unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (inference gateway unresponsive)"
	}
	return err.Error()
}

func formatBytes(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
