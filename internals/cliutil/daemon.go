package cliutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Oudwins/wocs/sdk"
)

// EnsureServer fails with a hint when no wocs server answers at the client's
// base URL.
func EnsureServer(client *sdk.Client) error {
	if sdk.IsRunning(client.BaseURL()) {
		return nil
	}
	return fmt.Errorf("no wocs server at %s; start one with `wocs serve`", client.BaseURL())
}

// StartDaemon re-executes the current binary as `wocs serve` in its own
// session, logging to <dataDir>/daemon.out, and waits for it to answer.
func StartDaemon(baseURL, dataDir string) error {
	if sdk.IsRunning(baseURL) {
		return fmt.Errorf("a wocs server is already running at %s", baseURL)
	}
	path, err := findServeBinary()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(filepath.Join(dataDir, "daemon.out"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	cmd := exec.Command(path, "serve")
	cmd.Stdout = out
	cmd.Stderr = out
	detachCmd(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	if err := cmd.Process.Release(); err != nil {
		return err
	}

	if !sdk.WaitForStart(baseURL) {
		return fmt.Errorf("wocs server did not come up at %s; see %s", baseURL, out.Name())
	}
	return nil
}

func findServeBinary() (string, error) {
	executable, err := os.Executable()
	if err == nil && executable != "" {
		return executable, nil
	}

	path, err := exec.LookPath("wocs")
	if err != nil {
		return "", fmt.Errorf("wocs not found in PATH")
	}
	return path, nil
}
