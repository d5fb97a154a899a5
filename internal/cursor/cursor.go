// Package cursor persists and restores each table's collection
// progress across process restarts: the next record number to
// request, the last record's timestamp, and the rolling-file writer's
// span/sample bookkeeping.
package cursor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/csilogger/pbcollect/internal/pbtime"
	"github.com/csilogger/pbcollect/internal/tdf"
)

const headerLine = "# NextRecord, LastRecordTime, NewFileTime, TimeOfFirstSampleInFile"

func path(workingPath, table string) string {
	return filepath.Join(workingPath, ".working", "info."+table)
}

// Load reads a table's persisted cursor, if present, into t. A
// missing file is not an error: t's cursor fields are left untouched
// (NextRecord stays 0 on a fresh Table, with no file open), the same
// as a freshly provisioned working directory.
func Load(workingPath string, t *tdf.Table) error {
	f, err := os.Open(path(workingPath, t.Name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cursor: opening history for %s: %w", t.Name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return nil // empty file, nothing to load
	}

	var nextRecord uint32
	var sec, newFileTime, firstSample int64
	var nsec int32
	if sc.Scan() {
		nextRecord = parseUint32(sc.Text())
	}
	if sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 {
			sec = parseInt64(fields[0])
			nsec = int32(parseInt64(fields[1]))
		}
	}
	if sc.Scan() {
		newFileTime = parseInt64(sc.Text())
	}
	if sc.Scan() {
		firstSample = parseInt64(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("cursor: reading history for %s: %w", t.Name, err)
	}

	t.NextRecord = nextRecord
	t.LastRecordTime = pbtime.NSec{Sec: sec, Nsec: nsec}
	t.NewFileTime = newFileTime
	t.FirstSampleInFile = firstSample
	return nil
}

// Save writes t's current cursor atomically: the new content lands in
// a sibling temp file first, then replaces the old one with a single
// rename, so a crash mid-write never leaves a truncated history file
// behind for the next run to misread.
func Save(workingPath string, t *tdf.Table) error {
	dir := filepath.Join(workingPath, ".working")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cursor: creating working dir: %w", err)
	}

	final := path(workingPath, t.Name)
	tmp := final + ".tmp"

	var b strings.Builder
	fmt.Fprintln(&b, headerLine)
	fmt.Fprintln(&b, t.NextRecord)
	fmt.Fprintln(&b, t.LastRecordTime.Sec, t.LastRecordTime.Nsec)
	fmt.Fprintln(&b, t.NewFileTime)
	fmt.Fprintln(&b, t.FirstSampleInFile)

	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("cursor: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("cursor: renaming %s to %s: %w", tmp, final, err)
	}
	return nil
}

// Reset clears a table's cursor and removes its persisted history and
// in-progress data file, used when a fresh Table Definition File
// invalidates everything collected under the old one.
func Reset(workingPath string, t *tdf.Table) error {
	t.NextRecord = 0
	t.NewFileTime = 0
	t.FirstSampleInFile = 0
	t.LastRecordTime = pbtime.NSec{}

	os.Remove(path(workingPath, t.Name))
	os.Remove(filepath.Join(workingPath, ".working", t.Name+".tmp"))
	return nil
}

func parseUint32(s string) uint32 {
	v, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	return uint32(v)
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}
