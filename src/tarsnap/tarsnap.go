// Package tarsnap wraps the tarsnap(1) archival tool.
package tarsnap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Options carries the settings common to every tarsnap invocation.
type Options struct {
	// KeyFile is passed as --keyfile.
	KeyFile string
	// CacheDir is passed as --cachedir.
	CacheDir string
	// Extra flags appended verbatim (from TARSNAP_OPTS).
	Extra []string
}

func (o Options) baseArgs() []string {
	args := []string{"--keyfile", o.KeyFile, "--cachedir", o.CacheDir}
	return append(args, o.Extra...)
}

// Archive describes a single archive creation run.
type Archive struct {
	// Name is the archive name, unique per run and host.
	Name string
	// Dir is the snapshot directory to archive.
	Dir string
	// SinceFile anchors incremental archival: only files with a
	// modification time newer than this file's are read.
	SinceFile string
	// Exclude is a path excluded from the archive (the snapshot's own
	// bookkeeping subdirectory).
	Exclude string
}

type runFunc func(ctx context.Context, exe string, args []string, out io.Writer) error

var run runFunc = runCommand

// CreateArchive runs `tarsnap -c` for the given archive. All tool output is
// streamed to out.
func CreateArchive(ctx context.Context, bin BinaryInfo, opts Options, a Archive, out io.Writer) error {
	args := opts.baseArgs()
	args = append(args, "--one-file-system")
	if a.Exclude != "" {
		args = append(args, "--exclude", a.Exclude)
	}
	if a.SinceFile != "" {
		args = append(args, "--newer-mtime-than", a.SinceFile)
	}
	args = append(args, "-c", "-f", a.Name, a.Dir)
	if err := run(ctx, bin.Path, args, out); err != nil {
		return fmt.Errorf("tarsnap: create archive %s: %w", a.Name, err)
	}
	return nil
}

// PrintStats runs `tarsnap --print-stats` and returns the tool's
// human-readable output.
func PrintStats(ctx context.Context, bin BinaryInfo, opts Options) (string, error) {
	args := opts.baseArgs()
	args = append(args, "--print-stats")
	var buf bytes.Buffer
	if err := run(ctx, bin.Path, args, &buf); err != nil {
		return buf.String(), fmt.Errorf("tarsnap: print stats: %w", err)
	}
	return buf.String(), nil
}

func runCommand(ctx context.Context, exe string, args []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, exe, args...)
	if out == nil {
		out = io.Discard
	}
	// tarsnap reports progress and stats on stderr; both streams go to the
	// same sink so nothing is lost.
	cmd.Stdout = out
	var stderrTail bytes.Buffer
	cmd.Stderr = io.MultiWriter(out, &stderrTail)
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderrTail.String()); s != "" {
			return fmt.Errorf("%w: %s", err, lastLine(s))
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// SetRunForTest replaces the tarsnap subprocess runner.
func SetRunForTest(fn runFunc) func() {
	prev := run
	run = fn
	return func() { run = prev }
}
