package proxy

import (
	"context"
	"fmt"
	"os/exec"
)

// CommandRunner shells out to the nginx binary, capturing combined
// output for error messages; replaced in tests so no real binary is
// required (mirrors the VM Image Manager's qemu-img runner).
type CommandRunner func(ctx context.Context, name string, args ...string) (output string, err error)

func execRunnerFunc(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %v failed: %w", name, args, err)
	}
	return string(out), nil
}
