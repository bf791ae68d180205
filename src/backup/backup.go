// Package backup sequences the per-subvolume pipeline: validate the path,
// refresh the touch marker, snapshot, archive with tarsnap, and clean up.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"btrsnap/src/btrfs"
	"btrsnap/src/config"
	"btrsnap/src/logging"
	"btrsnap/src/mail"
	"btrsnap/src/tarsnap"
)

const (
	manageDirName = ".btrsnap"
	snapshotName  = "snapshot"
	touchedName   = "touched"

	// mtimeSettle is how long to wait after rewriting the touch marker so
	// that coarse filesystem mtime resolution cannot alias the new marker
	// with a prior one.
	mtimeSettle = 2 * time.Second

	archiveTimeFormat = "2006-01-02T15:04:05-0700"
)

// Hooks for test stubs; production values invoke the real tools.
var (
	deleteSubvolume = btrfs.DeleteSubvolume
	createSnapshot  = btrfs.CreateReadOnlySnapshot
	createArchive   = tarsnap.CreateArchive
	printStats      = tarsnap.PrintStats
	sendMail        = mail.Send
	sleep           = time.Sleep
	hostname        = os.Hostname
	now             = time.Now
)

// Result is the outcome of processing one subvolume path.
type Result struct {
	Path string
	Err  error
}

func (r Result) Failed() bool { return r.Err != nil }

// Runner processes subvolume paths strictly sequentially.
type Runner struct {
	cfg    config.Config
	bin    tarsnap.BinaryInfo
	dryRun bool
	stdout io.Writer

	log        *logging.Logger
	btrfsLog   *logging.Logger
	tarsnapLog *logging.Logger
	statsLog   *logging.Logger
}

func NewRunner(cfg config.Config, bin tarsnap.BinaryInfo, dryRun bool, stdout io.Writer) *Runner {
	if stdout == nil {
		stdout = io.Discard
	}
	return &Runner{
		cfg:        cfg,
		bin:        bin,
		dryRun:     dryRun,
		stdout:     stdout,
		log:        logging.New("btrsnap"),
		btrfsLog:   logging.New("btrsnap/btrfs"),
		tarsnapLog: logging.New("btrsnap/tarsnap"),
		statsLog:   logging.New("btrsnap/tarsnap-stats"),
	}
}

// Run processes every path, isolating failures: a failing path is logged and
// alerted, then processing continues with the next one. After all paths a
// statistics pass is logged. The returned slice has one Result per path, in
// input order.
func (r *Runner) Run(ctx context.Context, paths []string) []Result {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		err := r.processPath(ctx, path)
		if err != nil {
			r.log.Errorf("backup of %s failed: %v", path, err)
			r.alert(ctx, path, err)
		} else if !r.dryRun {
			r.log.Infof("backup of %s complete", path)
		}
		results = append(results, Result{Path: path, Err: err})
	}
	if !r.dryRun {
		r.reportStats(ctx)
	}
	return results
}

func (r *Runner) processPath(ctx context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if r.dryRun {
		return r.dryRunPath(path)
	}
	if err := r.prepare(path); err != nil {
		return err
	}
	if err := r.snapshot(ctx, path); err != nil {
		return err
	}
	archiveErr := r.archive(ctx, path)
	// Cleanup runs whatever the archive outcome; a cleanup failure is
	// logged but never overrides an already-determined outcome.
	if err := deleteSubvolume(ctx, snapshotDir(path)); err != nil {
		r.btrfsLog.Errorf("cleanup of %s failed: %v", snapshotDir(path), err)
	}
	return archiveErr
}

// prepare ensures the management and cache directories exist and refreshes
// the touch marker that anchors incremental archival.
func (r *Runner) prepare(path string) error {
	if err := os.MkdirAll(manageDir(path), 0o755); err != nil {
		return fmt.Errorf("create management directory: %w", err)
	}
	if err := os.MkdirAll(r.cfg.CacheDir, 0o700); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(touchedFile(path), nil, 0o644); err != nil {
		return fmt.Errorf("refresh touch marker: %w", err)
	}
	sleep(mtimeSettle)
	return nil
}

// snapshot removes any stale snapshot left by a failed run, then creates a
// fresh read-only one.
func (r *Runner) snapshot(ctx context.Context, path string) error {
	dir := snapshotDir(path)
	if _, err := os.Stat(dir); err == nil {
		r.btrfsLog.Infof("removing stale snapshot %s", dir)
		if err := deleteSubvolume(ctx, dir); err != nil {
			return err
		}
	}
	r.btrfsLog.Infof("creating snapshot %s", dir)
	return createSnapshot(ctx, path, dir)
}

func (r *Runner) archive(ctx context.Context, path string) error {
	host, err := hostname()
	if err != nil {
		return fmt.Errorf("determine hostname: %w", err)
	}
	name := fmt.Sprintf("%s-%s-%s", now().Format(archiveTimeFormat), host, path)
	r.tarsnapLog.Infof("creating archive %s", name)

	out := logging.NewLineWriter(r.tarsnapLog)
	defer out.Flush()
	return createArchive(ctx, r.bin, r.tarsnapOptions(), tarsnap.Archive{
		Name:      name,
		Dir:       snapshotDir(path),
		SinceFile: touchedFile(path),
		Exclude:   filepath.Join(snapshotDir(path), manageDirName),
	}, out)
}

func (r *Runner) dryRunPath(path string) error {
	fmt.Fprintf(r.stdout, "dry-run: would snapshot %s to %s\n", path, snapshotDir(path))
	fmt.Fprintf(r.stdout, "dry-run: would archive %s with tarsnap and delete the snapshot\n", snapshotDir(path))
	return nil
}

// alert mails the configured recipients about a failed path. With no
// recipients configured alerting is disabled.
func (r *Runner) alert(ctx context.Context, path string, failure error) {
	recipients := r.cfg.Recipients()
	if len(recipients) == 0 {
		return
	}
	host, err := hostname()
	if err != nil {
		host = "unknown"
	}
	subject := fmt.Sprintf("btrsnap failure on %s: %s", host, path)
	body := fmt.Sprintf("Backup of %s on %s failed at %s:\n\n%v\n",
		path, host, now().Format(time.RFC1123Z), failure)
	if err := sendMail(ctx, recipients, subject, body); err != nil {
		r.log.Errorf("alert mail for %s failed: %v", path, err)
	}
}

// reportStats runs tarsnap once in statistics-only mode, logs the raw output,
// and prints a humanized summary. Statistics failures never change the run's
// outcome.
func (r *Runner) reportStats(ctx context.Context) {
	output, err := printStats(ctx, r.bin, r.tarsnapOptions())
	if err != nil {
		r.statsLog.Errorf("statistics run failed: %v", err)
		return
	}
	lw := logging.NewLineWriter(r.statsLog)
	_, _ = io.WriteString(lw, output)
	lw.Flush()

	stats, err := tarsnap.ParseStats(output)
	if err != nil {
		r.statsLog.Errorf("could not parse statistics: %v", err)
		return
	}
	fmt.Fprintln(r.stdout, stats.Summary())
}

func (r *Runner) tarsnapOptions() tarsnap.Options {
	return tarsnap.Options{
		KeyFile:  r.cfg.KeyFile,
		CacheDir: r.cfg.CacheDir,
		Extra:    r.cfg.ExtraOpts(),
	}
}

func manageDir(path string) string   { return filepath.Join(path, manageDirName) }
func snapshotDir(path string) string { return filepath.Join(manageDir(path), snapshotName) }
func touchedFile(path string) string { return filepath.Join(manageDir(path), touchedName) }
