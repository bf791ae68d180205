package tarsnap

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Stats holds the byte counters reported by `tarsnap --print-stats`.
type Stats struct {
	// TotalSize and CompressedSize cover all archives.
	TotalSize      uint64
	CompressedSize uint64
	// UniqueSize and UniqueCompressedSize cover unique (deduplicated)
	// data, i.e. what is actually stored remotely.
	UniqueSize           uint64
	UniqueCompressedSize uint64
}

// ParseStats extracts the "All archives" and "(unique data)" rows from
// tarsnap's statistics output.
func ParseStats(output string) (Stats, error) {
	var (
		stats     Stats
		sawAll    bool
		sawUnique bool
	)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "All archives"):
			total, compressed, err := parseSizeRow(strings.TrimPrefix(line, "All archives"))
			if err != nil {
				return Stats{}, fmt.Errorf("tarsnap: parse stats row %q: %w", line, err)
			}
			stats.TotalSize, stats.CompressedSize = total, compressed
			sawAll = true
		case strings.HasPrefix(line, "(unique data)"):
			total, compressed, err := parseSizeRow(strings.TrimPrefix(line, "(unique data)"))
			if err != nil {
				return Stats{}, fmt.Errorf("tarsnap: parse stats row %q: %w", line, err)
			}
			stats.UniqueSize, stats.UniqueCompressedSize = total, compressed
			sawUnique = true
		}
	}
	if err := scanner.Err(); err != nil {
		return Stats{}, fmt.Errorf("tarsnap: read stats output: %w", err)
	}
	if !sawAll || !sawUnique {
		return Stats{}, fmt.Errorf("tarsnap: stats output missing expected rows")
	}
	return stats, nil
}

func parseSizeRow(row string) (total, compressed uint64, err error) {
	fields := strings.Fields(row)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected 2 byte counts, got %d fields", len(fields))
	}
	total, err = strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	compressed, err = strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return total, compressed, nil
}

// Summary renders the stats on one line with humanized sizes.
func (s Stats) Summary() string {
	return fmt.Sprintf("all archives %s (%s compressed), unique data %s (%s compressed)",
		humanize.Bytes(s.TotalSize), humanize.Bytes(s.CompressedSize),
		humanize.Bytes(s.UniqueSize), humanize.Bytes(s.UniqueCompressedSize))
}
