// Package btrfs wraps the btrfs(8) subvolume commands used for transient
// backup snapshots.
package btrfs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type runFunc func(ctx context.Context, args ...string) (string, string, error)

var run runFunc = runCommand

// DeleteSubvolume removes a subvolume (typically a stale or finished
// snapshot) with `btrfs subvolume delete`.
func DeleteSubvolume(ctx context.Context, path string) error {
	if _, stderr, err := run(ctx, "subvolume", "delete", path); err != nil {
		return wrapCmdError(fmt.Sprintf("delete subvolume %s", path), stderr, err)
	}
	return nil
}

// CreateReadOnlySnapshot snapshots subvol at dest with `btrfs subvolume
// snapshot -r`.
func CreateReadOnlySnapshot(ctx context.Context, subvol, dest string) error {
	if _, stderr, err := run(ctx, "subvolume", "snapshot", "-r", subvol, dest); err != nil {
		return wrapCmdError(fmt.Sprintf("snapshot %s", subvol), stderr, err)
	}
	return nil
}

func runCommand(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "btrfs", args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	err := cmd.Run()
	return stdoutBuf.String(), stderrBuf.String(), err
}

func wrapCmdError(operation, stderr string, err error) error {
	if s := strings.TrimSpace(stderr); s != "" {
		return fmt.Errorf("btrfs: %s: %w: %s", operation, err, s)
	}
	return fmt.Errorf("btrfs: %s: %w", operation, err)
}

// SetRunForTest replaces the btrfs subprocess runner.
func SetRunForTest(fn runFunc) func() {
	prev := run
	run = fn
	return func() { run = prev }
}
