package cursor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/csilogger/pbcollect/internal/pbtime"
	"github.com/csilogger/pbcollect/internal/tdf"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	tbl := &tdf.Table{
		Name:              "Test",
		NextRecord:        42,
		LastRecordTime:    pbtime.NSec{Sec: 1000, Nsec: 500},
		NewFileTime:       3600,
		FirstSampleInFile: 50,
	}

	if err := Save(dir, tbl); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := &tdf.Table{Name: "Test"}
	if err := Load(dir, loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.NextRecord != 42 {
		t.Fatalf("NextRecord = %d, want 42", loaded.NextRecord)
	}
	if loaded.LastRecordTime != (pbtime.NSec{Sec: 1000, Nsec: 500}) {
		t.Fatalf("LastRecordTime = %+v, want {1000 500}", loaded.LastRecordTime)
	}
	if loaded.NewFileTime != 3600 {
		t.Fatalf("NewFileTime = %d, want 3600", loaded.NewFileTime)
	}
	if loaded.FirstSampleInFile != 50 {
		t.Fatalf("FirstSampleInFile = %d, want 50", loaded.FirstSampleInFile)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	tbl := &tdf.Table{Name: "NoHistory"}
	if err := Load(dir, tbl); err != nil {
		t.Fatalf("Load on missing history file: %v", err)
	}
	if tbl.NextRecord != 0 {
		t.Fatalf("NextRecord = %d, want 0 (untouched)", tbl.NextRecord)
	}
}

func TestSaveWritesExpectedLineFormat(t *testing.T) {
	dir := t.TempDir()
	tbl := &tdf.Table{
		Name:              "Fmt",
		NextRecord:        7,
		LastRecordTime:    pbtime.NSec{Sec: 10, Nsec: 20},
		NewFileTime:       3600,
		FirstSampleInFile: 5,
	}
	if err := Save(dir, tbl); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".working", "info.Fmt"))
	if err != nil {
		t.Fatalf("reading info file: %v", err)
	}
	want := "# NextRecord, LastRecordTime, NewFileTime, TimeOfFirstSampleInFile\n7\n10 20\n3600\n5\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestResetClearsCursorAndRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	tbl := &tdf.Table{
		Name:              "Reset",
		NextRecord:        99,
		LastRecordTime:    pbtime.NSec{Sec: 1, Nsec: 2},
		NewFileTime:       3600,
		FirstSampleInFile: 50,
	}
	if err := Save(dir, tbl); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tmpPath := filepath.Join(dir, ".working", "Reset.tmp")
	if err := os.WriteFile(tmpPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("seeding tmp data file: %v", err)
	}

	if err := Reset(dir, tbl); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if tbl.NextRecord != 0 || tbl.NewFileTime != 0 || tbl.FirstSampleInFile != 0 {
		t.Fatalf("Reset left cursor fields non-zero: %+v", tbl)
	}
	if tbl.LastRecordTime != (pbtime.NSec{}) {
		t.Fatalf("Reset left LastRecordTime non-zero: %+v", tbl.LastRecordTime)
	}
	if _, err := os.Stat(filepath.Join(dir, ".working", "info.Reset")); !os.IsNotExist(err) {
		t.Fatalf("expected info file removed, stat err = %v", err)
	}
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Fatalf("expected tmp file removed, stat err = %v", err)
	}
}
