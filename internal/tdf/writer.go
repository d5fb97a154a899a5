package tdf

import "github.com/csilogger/pbcollect/internal/pbtime"

// Writer is the contract driven during decode: one InitWrite per
// table, then per record RecordBegin, one store call per decoded
// value in field-list order, RecordEnd, and one FinishWrite per
// table at end of session (or Flush when the cursor is reset
// mid-run, e.g. on ring-buffer wrap).
type Writer interface {
	InitWrite(t *Table) error
	RecordBegin(t *Table, recordIndex uint32, recordTime pbtime.NSec) error
	StoreU32(v uint32) error
	StoreI32(v int32) error
	StoreF32(v float64) error
	StoreBool(v bool) error
	StoreString(v string) error
	StoreUnimplemented() error
	RecordEnd(t *Table) error
	FinishWrite(t *Table) error
	Flush(t *Table) error
}
