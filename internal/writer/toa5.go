// Package writer implements the TOA5-compatible per-table rolling
// text file writer driven by internal/tdf's record decoder.
package writer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/csilogger/pbcollect/internal/pbtime"
	"github.com/csilogger/pbcollect/internal/tdf"
	"github.com/rs/zerolog"
)

// Identity carries the logger facts the TOA5 header line needs, as
// returned by BMP5's GetProgStats plus the configured station name.
type Identity struct {
	StationName string
	LoggerType  string
	SerialNbr   string
	OSVersion   string
	ProgName    string
	ProgSig     uint16
}

const appVersion = "pbcollect-1.0"

// TOA5Writer implements tdf.Writer against the on-disk layout: one
// ".working/<Table>.tmp" file per table in progress, rolled over on
// the file_span boundary and renamed to "<Table>.<timestamp>.raw" in
// workingPath.
type TOA5Writer struct {
	workingPath string
	identity    Identity
	fileSpans   map[string]int64
	log         zerolog.Logger

	f      *os.File
	bw     *bufio.Writer
	line   strings.Builder
	nRecs  int
}

// New builds a TOA5Writer. fileSpans maps table name to its
// configured file_span_secs; a table absent from the map defaults to
// 3600, matching the original's fallback for an unset/negative span.
func New(workingPath string, identity Identity, fileSpans map[string]int64, log zerolog.Logger) *TOA5Writer {
	return &TOA5Writer{workingPath: workingPath, identity: identity, fileSpans: fileSpans, log: log}
}

func (w *TOA5Writer) fileSpanFor(table string) int64 {
	if v, ok := w.fileSpans[table]; ok && v > 0 {
		return v
	}
	return 3600
}

func (w *TOA5Writer) tmpPath(table string) string {
	return filepath.Join(w.workingPath, ".working", table+".tmp")
}

// InitWrite opens the table's in-progress file, appending to an
// existing non-empty one when the cursor indicates a file is already
// open (NewFileTime != 0), or starting a fresh file with a header
// otherwise.
func (w *TOA5Writer) InitWrite(t *tdf.Table) error {
	path := w.tmpPath(t.Name)
	if t.NewFileTime != 0 {
		if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("toa5: opening %s for append: %w", path, err)
			}
			w.f, w.bw = f, bufio.NewWriter(f)
			return nil
		}
	}
	return w.openNew(t)
}

func (w *TOA5Writer) openNew(t *tdf.Table) error {
	if err := os.MkdirAll(filepath.Dir(w.tmpPath(t.Name)), 0o755); err != nil {
		return fmt.Errorf("toa5: creating working dir: %w", err)
	}
	f, err := os.Create(w.tmpPath(t.Name))
	if err != nil {
		return fmt.Errorf("toa5: creating %s: %w", w.tmpPath(t.Name), err)
	}
	w.f, w.bw = f, bufio.NewWriter(f)
	return w.writeHeader(t)
}

func (w *TOA5Writer) writeHeader(t *tdf.Table) error {
	fmt.Fprintf(w.bw, "\"TOA5\",\"%s\",\"%s\",\"%s\",\"%s\",\"%s\",\"%d\",\"%s\",\"%s\"\n",
		w.identity.StationName, w.identity.LoggerType, w.identity.SerialNbr,
		w.identity.OSVersion, w.identity.ProgName, w.identity.ProgSig, t.Name, appVersion)

	w.printHeaderLine("\"TIMESTAMP\",\"RECORD\"", t.Fields, fieldInfoName)
	w.printHeaderLine("\"TS\",\"RN\"", t.Fields, fieldInfoUnit)
	w.printHeaderLine("\"\",\"\"", t.Fields, fieldInfoProcessing)
	return w.bw.Flush()
}

type fieldInfo int

const (
	fieldInfoName fieldInfo = iota
	fieldInfoUnit
	fieldInfoProcessing
)

func (w *TOA5Writer) printHeaderLine(prefix string, fields []tdf.Field, info fieldInfo) {
	w.bw.WriteString(prefix)
	for _, f := range fields {
		if f.Dimension > 1 && !f.IsString() {
			for dim := uint32(1); dim <= f.Dimension; dim++ {
				w.bw.WriteByte(',')
				w.bw.WriteString(fieldProperty(f, info, dim))
			}
			continue
		}
		w.bw.WriteByte(',')
		w.bw.WriteString(fieldProperty(f, info, 0))
	}
	w.bw.WriteByte('\n')
}

func fieldProperty(f tdf.Field, info fieldInfo, dim uint32) string {
	switch info {
	case fieldInfoName:
		if dim > 0 {
			return fmt.Sprintf("\"%s(%d)\"", f.Name, dim)
		}
		return fmt.Sprintf("\"%s\"", f.Name)
	case fieldInfoUnit:
		return fmt.Sprintf("\"%s\"", f.Unit)
	default:
		return fmt.Sprintf("\"%s\"", f.Processing)
	}
}

// RecordBegin rolls the file over when recordTime crosses the current
// file_span boundary, then writes the leading timestamp and record
// index.
func (w *TOA5Writer) RecordBegin(t *tdf.Table, recordIndex uint32, recordTime pbtime.NSec) error {
	if recordTime.Sec >= t.NewFileTime {
		if w.f != nil && t.FirstSampleInFile != 0 {
			if err := w.rollOver(t); err != nil {
				return err
			}
		}
		t.FirstSampleInFile = recordTime.Sec
		span := w.fileSpanFor(t.Name)
		t.NewFileTime = span*(recordTime.Sec/span) + span
	}

	w.line.Reset()
	w.line.WriteString(formatTimestamp(recordTime))
	w.line.WriteByte(',')
	w.line.WriteString(strconv.FormatUint(uint64(recordIndex), 10))
	return nil
}

func (w *TOA5Writer) rollOver(t *tdf.Table) error {
	if err := w.closeFile(); err != nil {
		return err
	}
	if err := w.moveRawFile(t); err != nil {
		return err
	}
	return w.openNew(t)
}

func (w *TOA5Writer) StoreU32(v uint32) error  { w.appendValue(strconv.FormatUint(uint64(v), 10)); return nil }
func (w *TOA5Writer) StoreI32(v int32) error   { w.appendValue(strconv.FormatInt(int64(v), 10)); return nil }
func (w *TOA5Writer) StoreF32(v float64) error { w.appendValue(strconv.FormatFloat(v, 'g', -1, 64)); return nil }
func (w *TOA5Writer) StoreBool(v bool) error {
	if v {
		w.appendValue("1")
	} else {
		w.appendValue("0")
	}
	return nil
}
func (w *TOA5Writer) StoreString(v string) error {
	w.appendValue("\"" + v + "\"")
	return nil
}
func (w *TOA5Writer) StoreUnimplemented() error { w.appendValue("-9999"); return nil }

func (w *TOA5Writer) appendValue(s string) {
	w.line.WriteByte(',')
	w.line.WriteString(s)
}

func (w *TOA5Writer) RecordEnd(t *tdf.Table) error {
	w.line.WriteByte('\n')
	if _, err := w.bw.WriteString(w.line.String()); err != nil {
		return err
	}
	w.nRecs++
	return nil
}

// FinishWrite closes the current file, flushing buffered output. The
// ".tmp" file stays in place; it is renamed only on rollover or Flush.
// BMP5's CollectData calls it once at the end of a successful
// collection; its error returns skip it.
func (w *TOA5Writer) FinishWrite(t *tdf.Table) error {
	return w.closeFile()
}

func (w *TOA5Writer) closeFile() error {
	if w.f == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("toa5: flushing %s: %w", w.f.Name(), err)
	}
	err := w.f.Close()
	if w.nRecs > 0 {
		w.log.Debug().Int("records", w.nRecs).Msg("toa5: wrote records")
	}
	w.nRecs = 0
	w.f, w.bw = nil, nil
	if err != nil {
		return fmt.Errorf("toa5: closing file: %w", err)
	}
	return nil
}

// Flush closes and finalizes the in-progress file out of band, used
// when BMP5's CollectData resets a table's cursor mid-run (the ring
// buffer wrapped or was reset).
func (w *TOA5Writer) Flush(t *tdf.Table) error {
	if err := w.closeFile(); err != nil {
		return err
	}
	return w.moveRawFile(t)
}

// moveRawFile renames the finished ".tmp" file to its timestamped
// final name. A tmp file with no recorded sample (FirstSampleInFile
// still zero) is never renamed, since no valid timestamp can be
// derived from it: it is removed when empty, and a non-empty one
// (e.g. header lines only) is left in place.
func (w *TOA5Writer) moveRawFile(t *tdf.Table) error {
	tmp := w.tmpPath(t.Name)
	if t.FirstSampleInFile == 0 {
		if fi, err := os.Stat(tmp); err == nil && fi.Size() == 0 {
			os.Remove(tmp)
		}
		return nil
	}

	final := filepath.Join(w.workingPath, fmt.Sprintf("%s.%s.raw", t.Name, fileTimestamp(t.FirstSampleInFile)))
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("toa5: renaming %s to %s: %w", tmp, final, err)
	}
	t.FirstSampleInFile = 0
	return nil
}

func formatTimestamp(n pbtime.NSec) string {
	t := n.Time()
	ms := n.Nsec / 1_000_000
	return fmt.Sprintf("\"%04d-%02d-%02d %02d:%02d:%02d.%03d\"",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), ms)
}

func fileTimestamp(sec int64) string {
	t := pbtime.FromSeconds(sec).Time()
	return fmt.Sprintf("%04d%02d%02d_%02d%02d%02d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}
