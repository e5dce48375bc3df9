package daemon

import (
	"fmt"
	"os"
	"os/exec"
)

const (
	envKey  = "REGIME_TRADER_DAEMON"
	pidFile = "regime-trader.pid"
)

// IsDaemon reports whether the current process was spawned as the background
// daemon.
func IsDaemon() bool {
	return os.Getenv(envKey) == "true"
}

// StartDaemon re-executes the current binary as a background process and
// records its PID.
func StartDaemon(args []string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Env = append(os.Environ(), envKey+"=true")
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", cmd.Process.Pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	fmt.Printf("Daemon started with PID %d (pid file %s)\n", cmd.Process.Pid, pidFile)
	return nil
}

// StopDaemon kills the process recorded in the PID file and removes the file.
func StopDaemon() error {
	pidData, err := os.ReadFile(pidFile)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err != nil {
		return fmt.Errorf("failed to parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Kill(); err != nil {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	if err := os.Remove(pidFile); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	fmt.Printf("Daemon with PID %d has been stopped.\n", pid)
	return nil
}

// RestartDaemon stops any running daemon and starts a fresh one.
func RestartDaemon(args []string) error {
	if err := StopDaemon(); err != nil {
		fmt.Printf("Warning: could not stop daemon: %v\n", err)
	}
	return StartDaemon(args)
}
