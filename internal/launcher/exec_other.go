//go:build !unix

package launcher

import "os/exec"

// killProcessGroup is a no-op where process groups are unavailable. Only the
// target itself is killed on cancellation.
func killProcessGroup(*exec.Cmd) {}
