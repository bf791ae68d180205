package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"

	"btrsnap/src/config"
	"btrsnap/src/logging"
	"btrsnap/src/tarsnap"
)

const sampleStats = `                                       Total size  Compressed size
All archives                                  700              300
  (unique data)                               400              200
`

// fakeTools records every external-tool invocation the pipeline makes.
type fakeTools struct {
	calls       []string
	archives    []tarsnap.Archive
	alerts      []string
	alertBodies []string
	sleeps      []time.Duration
	archiveErr  func(a tarsnap.Archive) error
	deleteErr   func(path string) error
}

func installFakes(t *testing.T) *fakeTools {
	t.Helper()
	f := &fakeTools{}
	restores := []func(){
		SetDeleteSubvolumeForTest(func(_ context.Context, p string) error {
			f.calls = append(f.calls, "delete "+p)
			if f.deleteErr != nil {
				return f.deleteErr(p)
			}
			return nil
		}),
		SetCreateSnapshotForTest(func(_ context.Context, subvol, dest string) error {
			f.calls = append(f.calls, "snapshot "+subvol+" "+dest)
			return nil
		}),
		SetCreateArchiveForTest(func(_ context.Context, _ tarsnap.BinaryInfo, _ tarsnap.Options, a tarsnap.Archive, _ io.Writer) error {
			f.calls = append(f.calls, "archive "+a.Dir)
			f.archives = append(f.archives, a)
			if f.archiveErr != nil {
				return f.archiveErr(a)
			}
			return nil
		}),
		SetPrintStatsForTest(func(context.Context, tarsnap.BinaryInfo, tarsnap.Options) (string, error) {
			f.calls = append(f.calls, "stats")
			return sampleStats, nil
		}),
		SetSendMailForTest(func(_ context.Context, _ []string, subject, body string) error {
			f.alerts = append(f.alerts, subject)
			f.alertBodies = append(f.alertBodies, body)
			return nil
		}),
		SetSleepForTest(func(d time.Duration) { f.sleeps = append(f.sleeps, d) }),
		SetHostnameForTest(func() (string, error) { return "backuphost", nil }),
		SetNowForTest(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
		logging.SetJournalForTest(func() bool { return false }, journal.Send),
		logging.SetFallbackForTest(io.Discard),
	}
	t.Cleanup(func() {
		for _, restore := range restores {
			restore()
		}
	})
	return f
}

func testConfig(t *testing.T, subvol string) config.Config {
	t.Helper()
	return config.Config{
		CacheDir:        filepath.Join(subvol, "cache"),
		KeyFile:         "/root/tarsnap.key",
		AlertRecipients: "root",
	}
}

func TestHappyPathRunsSnapshotArchiveDeleteInOrder(t *testing.T) {
	f := installFakes(t)
	subvol := t.TempDir()
	cfg := testConfig(t, subvol)
	var stdout bytes.Buffer

	runner := NewRunner(cfg, tarsnap.BinaryInfo{Path: "tarsnap"}, false, &stdout)
	results := runner.Run(context.Background(), []string{subvol})

	if len(results) != 1 || results[0].Failed() {
		t.Fatalf("expected one successful result, got %#v", results)
	}
	snapDir := filepath.Join(subvol, ".btrsnap", "snapshot")
	want := []string{
		"snapshot " + subvol + " " + snapDir,
		"archive " + snapDir,
		"delete " + snapDir,
		"stats",
	}
	if fmt.Sprint(f.calls) != fmt.Sprint(want) {
		t.Fatalf("unexpected call sequence:\n got %v\nwant %v", f.calls, want)
	}

	if _, err := os.Stat(filepath.Join(subvol, ".btrsnap", "touched")); err != nil {
		t.Fatalf("touch marker missing: %v", err)
	}
	fi, err := os.Stat(cfg.CacheDir)
	if err != nil {
		t.Fatalf("cache directory missing: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o700 {
		t.Fatalf("cache directory mode = %o, want 700", perm)
	}
	if len(f.sleeps) != 1 || f.sleeps[0] != 2*time.Second {
		t.Fatalf("expected one 2s settle delay, got %v", f.sleeps)
	}

	a := f.archives[0]
	wantName := "2024-05-01T12:00:00+0000-backuphost-" + subvol
	if a.Name != wantName {
		t.Fatalf("archive name = %q, want %q", a.Name, wantName)
	}
	if a.SinceFile != filepath.Join(subvol, ".btrsnap", "touched") {
		t.Fatalf("since file = %q", a.SinceFile)
	}
	if a.Exclude != filepath.Join(snapDir, ".btrsnap") {
		t.Fatalf("exclude = %q", a.Exclude)
	}

	if !strings.Contains(stdout.String(), "unique data 400 B (200 B compressed)") {
		t.Fatalf("stats summary missing from stdout: %q", stdout.String())
	}
	if len(f.alerts) != 0 {
		t.Fatalf("unexpected alerts: %v", f.alerts)
	}
}

func TestStaleSnapshotIsDeletedBeforeCreate(t *testing.T) {
	f := installFakes(t)
	subvol := t.TempDir()
	snapDir := filepath.Join(subvol, ".btrsnap", "snapshot")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(testConfig(t, subvol), tarsnap.BinaryInfo{Path: "tarsnap"}, false, io.Discard)
	results := runner.Run(context.Background(), []string{subvol})

	if results[0].Failed() {
		t.Fatalf("unexpected failure: %v", results[0].Err)
	}
	want := []string{
		"delete " + snapDir,
		"snapshot " + subvol + " " + snapDir,
		"archive " + snapDir,
		"delete " + snapDir,
		"stats",
	}
	if fmt.Sprint(f.calls) != fmt.Sprint(want) {
		t.Fatalf("unexpected call sequence:\n got %v\nwant %v", f.calls, want)
	}
}

func TestArchiveFailureStillCleansUpAndAlerts(t *testing.T) {
	f := installFakes(t)
	f.archiveErr = func(tarsnap.Archive) error { return fmt.Errorf("tarsnap exploded") }
	subvol := t.TempDir()
	snapDir := filepath.Join(subvol, ".btrsnap", "snapshot")

	runner := NewRunner(testConfig(t, subvol), tarsnap.BinaryInfo{Path: "tarsnap"}, false, io.Discard)
	results := runner.Run(context.Background(), []string{subvol})

	if !results[0].Failed() {
		t.Fatal("expected the path to fail")
	}
	// The snapshot must still be deleted after the failed archive.
	deleted := false
	for i, c := range f.calls {
		if c == "archive "+snapDir {
			for _, later := range f.calls[i+1:] {
				if later == "delete "+snapDir {
					deleted = true
				}
			}
		}
	}
	if !deleted {
		t.Fatalf("snapshot not deleted after archive failure; calls: %v", f.calls)
	}
	if len(f.alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %v", f.alerts)
	}
	if !strings.Contains(f.alerts[0], "backuphost") || !strings.Contains(f.alerts[0], subvol) {
		t.Fatalf("alert subject missing host or path: %q", f.alerts[0])
	}
	if !strings.Contains(f.alertBodies[0], "tarsnap exploded") {
		t.Fatalf("alert body missing failure: %q", f.alertBodies[0])
	}
}

func TestAggregateFailureIsolation(t *testing.T) {
	f := installFakes(t)
	good := t.TempDir()
	bad := t.TempDir()
	f.archiveErr = func(a tarsnap.Archive) error {
		if strings.HasPrefix(a.Dir, bad) {
			return fmt.Errorf("upload failed")
		}
		return nil
	}

	runner := NewRunner(testConfig(t, good), tarsnap.BinaryInfo{Path: "tarsnap"}, false, io.Discard)
	results := runner.Run(context.Background(), []string{good, bad})

	if results[0].Failed() {
		t.Fatalf("first path should succeed: %v", results[0].Err)
	}
	if !results[1].Failed() {
		t.Fatal("second path should fail")
	}
	if len(f.alerts) != 1 || !strings.Contains(f.alerts[0], bad) {
		t.Fatalf("expected one alert referencing %q, got %v", bad, f.alerts)
	}
	// Both paths were archived: the failure did not stop processing.
	if len(f.archives) != 2 {
		t.Fatalf("expected 2 archive attempts, got %d", len(f.archives))
	}
}

func TestValidationFailureTouchesNothing(t *testing.T) {
	f := installFakes(t)

	runner := NewRunner(testConfig(t, t.TempDir()), tarsnap.BinaryInfo{Path: "tarsnap"}, false, io.Discard)
	results := runner.Run(context.Background(), []string{"/data/bad path"})

	if !results[0].Failed() {
		t.Fatal("expected validation failure")
	}
	for _, c := range f.calls {
		if c != "stats" {
			t.Fatalf("tool invoked for rejected path: %v", f.calls)
		}
	}
	if len(f.alerts) != 1 {
		t.Fatalf("expected one alert, got %v", f.alerts)
	}
}

func TestNoRecipientsDisablesAlerting(t *testing.T) {
	f := installFakes(t)
	f.archiveErr = func(tarsnap.Archive) error { return fmt.Errorf("upload failed") }
	subvol := t.TempDir()
	cfg := testConfig(t, subvol)
	cfg.AlertRecipients = ""

	runner := NewRunner(cfg, tarsnap.BinaryInfo{Path: "tarsnap"}, false, io.Discard)
	results := runner.Run(context.Background(), []string{subvol})

	if !results[0].Failed() {
		t.Fatal("expected the path to fail")
	}
	if len(f.alerts) != 0 {
		t.Fatalf("alerting should be disabled, got %v", f.alerts)
	}
}

func TestCleanupFailureDoesNotOverrideSuccess(t *testing.T) {
	f := installFakes(t)
	f.deleteErr = func(string) error { return fmt.Errorf("subvolume busy") }
	subvol := t.TempDir()

	runner := NewRunner(testConfig(t, subvol), tarsnap.BinaryInfo{Path: "tarsnap"}, false, io.Discard)
	results := runner.Run(context.Background(), []string{subvol})

	if results[0].Failed() {
		t.Fatalf("cleanup failure must not fail the path: %v", results[0].Err)
	}
	if len(f.alerts) != 0 {
		t.Fatalf("unexpected alerts: %v", f.alerts)
	}
}

func TestDryRunPerformsNoOperations(t *testing.T) {
	f := installFakes(t)
	subvol := t.TempDir()
	var stdout bytes.Buffer

	runner := NewRunner(testConfig(t, subvol), tarsnap.BinaryInfo{Path: "tarsnap"}, true, &stdout)
	results := runner.Run(context.Background(), []string{subvol})

	if results[0].Failed() {
		t.Fatalf("unexpected failure: %v", results[0].Err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("dry run invoked tools: %v", f.calls)
	}
	if _, err := os.Stat(filepath.Join(subvol, ".btrsnap")); !os.IsNotExist(err) {
		t.Fatal("dry run created the management directory")
	}
	if !strings.Contains(stdout.String(), "dry-run:") {
		t.Fatalf("missing dry-run output: %q", stdout.String())
	}
}
