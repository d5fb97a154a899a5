package tdf

import (
	"encoding/binary"
	"testing"
)

func putU32(dst []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return append(dst, b...)
}

func putVarstr(dst []byte, s string) []byte {
	return append(append(dst, []byte(s)...), 0x00)
}

// buildField encodes one field entry in the field-list wire layout:
// type, name, extra zero, processing, unit, description, begin_index,
// dimension, sub-dims terminated by zero u32.
func buildField(typ byte, name, processing, unit, desc string, begin, dim uint32, subdims ...uint32) []byte {
	var b []byte
	b = append(b, typ)
	b = putVarstr(b, name)
	b = append(b, 0x00) // extra terminator
	b = putVarstr(b, processing)
	b = putVarstr(b, unit)
	b = putVarstr(b, desc)
	b = putU32(b, begin)
	b = putU32(b, dim)
	for _, sd := range subdims {
		b = putU32(b, sd)
	}
	b = putU32(b, 0)
	return b
}

func buildTable(name string, size uint32, fields ...[]byte) []byte {
	var b []byte
	b = putVarstr(b, name)
	b = putU32(b, size)
	b = append(b, 0x01)              // time_type
	b = putU32(b, 0)                 // time_info sec
	b = putU32(b, 0)                 // time_info nsec
	b = putU32(b, 60)                // interval sec
	b = putU32(b, 0)                 // interval nsec
	for _, f := range fields {
		b = append(b, f...)
	}
	b = append(b, 0x00) // field-list terminator
	b = append(b, 0x00) // table terminator
	return b
}

func TestParseSingleTable(t *testing.T) {
	field := buildField(byte(FieldUInt2), "Batt_Volt", "Smp", "Volts", "battery voltage", 1, 0)
	blob := append([]byte{0x01}, buildTable("Status", 500, field)...)

	tables, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}
	tbl := tables[0]
	if tbl.Name != "Status" || tbl.Size != 500 || tbl.Number != 1 {
		t.Fatalf("table = %+v", tbl)
	}
	if len(tbl.Fields) != 1 || tbl.Fields[0].Name != "Batt_Volt" || tbl.Fields[0].Type != FieldUInt2 {
		t.Fatalf("fields = %+v", tbl.Fields)
	}
}

func TestParseDropsEmptyFieldNames(t *testing.T) {
	empty := buildField(byte(FieldUInt1), "", "", "", "", 0, 0)
	kept := buildField(byte(FieldUInt1), "Keep", "", "", "", 1, 0)
	blob := append([]byte{0x01}, buildTable("T1", 10, empty, kept)...)

	tables, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tables[0].Fields) != 1 || tables[0].Fields[0].Name != "Keep" {
		t.Fatalf("fields = %+v", tables[0].Fields)
	}
}

func TestParseDuplicateTableNameKeepsFirst(t *testing.T) {
	f1 := buildField(byte(FieldUInt1), "A", "", "", "", 0, 0)
	f2 := buildField(byte(FieldUInt2), "B", "", "", "", 0, 0)
	blob := []byte{0x01}
	blob = append(blob, buildTable("Dup", 1, f1)...)
	blob = append(blob, buildTable("Dup", 2, f2)...)

	tables, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1 (duplicate dropped)", len(tables))
	}
	if tables[0].Size != 1 || tables[0].Fields[0].Name != "A" {
		t.Fatalf("table = %+v, want the first-seen definition kept", tables[0])
	}
}
