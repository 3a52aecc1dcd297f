//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/caseload/pkg/caseload"
)

const e2eAPIKey = "e2e-test-api-key"

// caseloadServer manages a running caseload server process.
type caseloadServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile string
}

// startCaseload launches the caseload binary and waits for it to become healthy.
// The server is configured entirely via environment variables.
func startCaseload(t *testing.T) *caseloadServer {
	t.Helper()
	requireCaseload(t)
	return launch(t, t.TempDir(), "caseload.log")
}

// restartOnSameData stops s and starts a new server over the same database.
func (s *caseloadServer) restartOnSameData(t *testing.T) *caseloadServer {
	t.Helper()
	s.stop()
	time.Sleep(200 * time.Millisecond) // allow port release
	return launch(t, s.dataDir, "caseload-restart.log")
}

func launch(t *testing.T, dataDir, logName string) *caseloadServer {
	t.Helper()

	port := freePort(t)
	logFile := filepath.Join(dataDir, logName)

	cmd := exec.Command(caseloadBin)
	cmd.Env = append(serverEnv(dataDir),
		fmt.Sprintf("CASELOAD_PORT=%d", port),
		"CASELOAD_API_KEY="+e2eAPIKey,
		"CASELOAD_SNAPSHOT_INTERVAL=1h",
	)

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start caseload: %v", err)
	}

	s := &caseloadServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: logFile,
	}

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		logs, _ := os.ReadFile(logFile)
		t.Fatalf("caseload not healthy: %v\n%s", err, logs)
	}
	return s
}

// serverEnv points the database, snapshots, and config file into dataDir.
func serverEnv(dataDir string) []string {
	return append(os.Environ(),
		"CASELOAD_DB_PATH="+filepath.Join(dataDir, "caseload.db"),
		"CASELOAD_SNAPSHOT_DIR="+filepath.Join(dataDir, "snapshots"),
		"CASELOAD_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"), // skip YAML file
		"CASELOAD_SNAPSHOT_BUCKET=",
	)
}

func (s *caseloadServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *caseloadServer) baseURL() string {
	return fmt.Sprintf("http://%s", s.address)
}

func (s *caseloadServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("%s/api/v1/health", s.baseURL())

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("caseload not healthy after %s", timeout)
}

// client returns an API client for the running server.
func (s *caseloadServer) client(t *testing.T) *caseload.Client {
	t.Helper()
	c, err := caseload.New(caseload.Config{BaseURL: s.baseURL(), APIKey: e2eAPIKey})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// cli runs a caseload subcommand against the server and returns combined output.
func (s *caseloadServer) cli(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append(args, "--server", s.baseURL(), "--api-key", e2eAPIKey)
	return runCLI(t, s.dataDir, full...)
}

// runCLI runs a caseload subcommand with the data directory's environment.
func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, caseloadBin, args...)
	cmd.Env = serverEnv(dataDir)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func writeFormFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0644); err != nil {
		t.Fatalf("write form: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
