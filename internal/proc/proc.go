// Package proc builds external commands whose cancellation reaches every
// process they start, not only the direct child.
package proc

import (
	"context"
	"os/exec"
	"time"
)

// WaitDelay bounds how long Wait keeps reading output after the command
// was cancelled.
const WaitDelay = 2 * time.Second

// CommandContext is exec.CommandContext with the command placed in its own
// process group. When ctx is done the whole group is killed, so helpers
// such as git-remote-https or a wrapper script's children cannot hold the
// output pipes open past the deadline.
func CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	setGroup(cmd)
	cmd.WaitDelay = WaitDelay
	return cmd
}
