package backup

import (
	"context"
	"io"
	"time"

	"btrsnap/src/tarsnap"
)

// SetDeleteSubvolumeForTest stubs out btrfs snapshot deletion.
func SetDeleteSubvolumeForTest(fn func(context.Context, string) error) func() {
	prev := deleteSubvolume
	deleteSubvolume = fn
	return func() { deleteSubvolume = prev }
}

// SetCreateSnapshotForTest stubs out btrfs snapshot creation.
func SetCreateSnapshotForTest(fn func(context.Context, string, string) error) func() {
	prev := createSnapshot
	createSnapshot = fn
	return func() { createSnapshot = prev }
}

// SetCreateArchiveForTest stubs out tarsnap archive creation.
func SetCreateArchiveForTest(fn func(context.Context, tarsnap.BinaryInfo, tarsnap.Options, tarsnap.Archive, io.Writer) error) func() {
	prev := createArchive
	createArchive = fn
	return func() { createArchive = prev }
}

// SetPrintStatsForTest stubs out the tarsnap statistics run.
func SetPrintStatsForTest(fn func(context.Context, tarsnap.BinaryInfo, tarsnap.Options) (string, error)) func() {
	prev := printStats
	printStats = fn
	return func() { printStats = prev }
}

// SetSendMailForTest stubs out alert delivery.
func SetSendMailForTest(fn func(context.Context, []string, string, string) error) func() {
	prev := sendMail
	sendMail = fn
	return func() { sendMail = prev }
}

// SetSleepForTest removes the post-touch settle delay in tests.
func SetSleepForTest(fn func(time.Duration)) func() {
	prev := sleep
	sleep = fn
	return func() { sleep = prev }
}

// SetHostnameForTest pins the hostname used in archive names and alerts.
func SetHostnameForTest(fn func() (string, error)) func() {
	prev := hostname
	hostname = fn
	return func() { hostname = prev }
}

// SetNowForTest pins the clock used for archive names.
func SetNowForTest(fn func() time.Time) func() {
	prev := now
	now = fn
	return func() { now = prev }
}
