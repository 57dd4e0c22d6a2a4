//go:build windows

package transport

import (
	"os/exec"
	"syscall"
)

// hideWindow keeps the spawned server from opening a console window.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
