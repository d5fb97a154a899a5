package tdf

import "github.com/csilogger/pbcollect/internal/pbtime"

// Table is a named record stream on the logger, plus the mutable
// collection cursor that lives across process runs. The cursor fields
// are updated by BMP5's CollectData (NextRecord, LastRecordTime), by
// the TOA5 writer (NewFileTime, FirstSampleInFile), and by
// internal/cursor's Load and Reset.
type Table struct {
	Name            string
	Number          int // 1-based, assignment order in the TDF
	Size            uint32
	TimeType        byte
	TimeInfo        pbtime.NSec
	TimeInterval    pbtime.NSec
	Fields          []Field
	Signature       uint16

	// Cursor (mutable, persisted via internal/cursor).
	NextRecord        uint32
	LastRecordTime    pbtime.NSec
	NewFileTime       int64 // epoch-1990 seconds; 0 means "no file open yet"
	FirstSampleInFile int64 // epoch-1990 seconds of the first record in the open file
}

// RecordSize returns the fixed per-record byte width, or -1 if any
// field has variable width (a type-16 string), which switches the
// BMP5 collect loop to one-record-per-request and the reassembly
// buffer to length-unknown mode.
func (t *Table) RecordSize() int {
	total := 0
	for _, f := range t.Fields {
		sz := f.Size()
		if sz < 0 {
			return -1
		}
		total += sz
	}
	return total
}
