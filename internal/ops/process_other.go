//go:build windows

package ops

import "os/exec"

// setupProcessGroup is a no-op; CommandContext kills the direct child and
// WaitDelay bounds the wait for pipes held by its descendants.
func setupProcessGroup(cmd *exec.Cmd) {}
