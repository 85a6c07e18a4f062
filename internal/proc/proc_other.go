//go:build !unix

package proc

import "os/exec"

// Without process groups only the direct child is killed; WaitDelay still
// bounds Wait.
func setGroup(*exec.Cmd) {}
