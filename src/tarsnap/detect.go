package tarsnap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// BinaryInfo describes a detected tarsnap CLI binary.
type BinaryInfo struct {
	Path    string
	Version string
}

var versionRegexp = regexp.MustCompile(`tarsnap\s+([0-9]+\.[0-9]+(?:\.[0-9]+)*)`)

// Detect locates the tarsnap binary on PATH and queries its version. The
// context bounds the version subprocess.
func Detect(ctx context.Context) (BinaryInfo, error) {
	exe, err := exec.LookPath("tarsnap")
	if err != nil {
		return BinaryInfo{}, fmt.Errorf("tarsnap binary not found on PATH: %w", err)
	}
	ver, err := queryVersion(ctx, exe)
	if err != nil {
		return BinaryInfo{}, err
	}
	return BinaryInfo{Path: exe, Version: ver}, nil
}

func queryVersion(ctx context.Context, exe string) (string, error) {
	// Guard against a hanging subprocess with a short timeout.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, exe, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tarsnap: version command failed: %w", err)
	}
	version, err := parseVersion(&out)
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", errors.New("tarsnap: could not parse version output")
	}
	return version, nil
}

func parseVersion(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if matches := versionRegexp.FindStringSubmatch(scanner.Text()); len(matches) == 2 {
			return matches[1], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("tarsnap: read version output: %w", err)
	}
	return "", nil
}

// ExtractVersion derives the tarsnap version string from the supplied command
// output. It is primarily exposed for testing.
func ExtractVersion(output string) (string, error) {
	return parseVersion(strings.NewReader(output))
}
