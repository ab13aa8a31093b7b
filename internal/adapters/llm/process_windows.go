//go:build windows

package llm

import "os/exec"

// configureProcAttr is a no-op on Windows (Setpgid not supported).
func configureProcAttr(_ *exec.Cmd) {}

// killProcess kills the command process.
func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
