package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"vidflow/internal/stage"
)

// Pinger verifies a downstream endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAppSync pings the GraphQL endpoint with a 10-second budget and a single attempt.
func CheckAppSync(ctx context.Context, client Pinger) Result {
	const name = "AppSync"
	if client == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckStages reports each stage handler's configuration health.
func CheckStages(ctx context.Context, handlers []stage.Handler) []Result {
	results := make([]Result, 0, len(handlers))
	for _, handler := range handlers {
		health := handler.HealthCheck(ctx)
		detail := health.Detail
		if detail == "" {
			detail = "configured"
		}
		results = append(results, Result{Name: "Stage " + health.Name, Passed: health.Ready, Detail: detail})
	}
	return results
}

// CheckTCP dials the host of rawURL. It confirms the broker port is open; it
// does not authenticate.
func CheckTCP(ctx context.Context, name, rawURL, defaultPort string) Result {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url %q", rawURL)}
	}
	port := parsed.Port()
	if port == "" {
		port = defaultPort
	}
	address := net.JoinHostPort(parsed.Hostname(), port)

	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%s)", address, summarizeError(err))}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", address)}
}

// summarizeError produces a human-readable summary for connectivity failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
