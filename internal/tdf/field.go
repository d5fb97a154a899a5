// Package tdf parses a logger's binary Table Definition File into
// Tables and Fields, computes per-table record sizes, and decodes
// binary records into typed field values dispatched to a Writer.
package tdf

// FieldType is the wire type code carried in a Field's first byte
// (with the top bit cleared).
type FieldType byte

const (
	FieldUInt1   FieldType = 1
	FieldUInt2   FieldType = 2
	FieldUInt4   FieldType = 3
	FieldInt1    FieldType = 4
	FieldInt2    FieldType = 5
	FieldInt4    FieldType = 6
	FieldFS2     FieldType = 7 // final-storage float
	FieldFP4     FieldType = 9 // IEEE-754 single
	FieldBool    FieldType = 10
	FieldString  FieldType = 11 // fixed-length
	FieldSecT    FieldType = 12 // 1s-resolution time
	FieldUInt6   FieldType = 13
	FieldASCII   FieldType = 16 // variable-length, NUL-terminated
	FieldBool2   FieldType = 27
	FieldBool4   FieldType = 28
	FieldFlags1  FieldType = 17
)

// unimplementedWidths gives the fixed byte width of field-type codes
// this decoder leaves unimplemented (they still advance the decode
// cursor correctly; the decoded value is always the sentinel -9999).
var unimplementedWidths = map[FieldType]int{
	8:  4,
	14: 8,
	15: 3,
	18: 8,
	19: 2,
	20: 4,
	21: 2,
	22: 4,
	23: 8,
	24: 4,
	25: 8,
	26: 4,
}

// byteWidth returns the per-value wire width of t, or (width, true)
// from the unimplemented table, or 0 for variable-width types
// (String, ASCII) whose width is declared separately.
func byteWidth(t FieldType) (int, bool) {
	switch t {
	case FieldUInt1, FieldInt1, FieldBool, FieldBool2, FieldBool4:
		return 1, true
	case FieldUInt2, FieldInt2, FieldFS2:
		return 2, true
	case FieldUInt4, FieldInt4, FieldFP4, FieldSecT:
		return 4, true
	case FieldUInt6:
		return 6, true
	case FieldFlags1:
		return 1, true
	case FieldString, FieldASCII:
		return 0, false
	}
	if w, ok := unimplementedWidths[t]; ok {
		return w, true
	}
	return 0, false
}

// Field is a typed slot inside a record.
type Field struct {
	Type         FieldType
	Name         string
	Processing   string
	Unit         string
	Description  string
	BeginIndex   uint32
	// Dimension is the array length, except for string-type fields
	// (11, 16) where it is the declared string length.
	Dimension    uint32
	SubDimensions []uint32
}

// IsString reports whether f is one of the two string field types,
// where Dimension means "string length" rather than "array count".
func (f Field) IsString() bool {
	return f.Type == FieldString || f.Type == FieldASCII
}

// Size returns the total wire byte width of one record of this
// field, or -1 if the field's width cannot be known ahead of decode
// (a variable-length ASCII string, field type 16).
func (f Field) Size() int {
	if f.Type == FieldASCII {
		return -1
	}
	if f.Type == FieldString {
		return int(f.Dimension)
	}
	w, _ := byteWidth(f.Type)
	if f.Dimension == 0 {
		return w
	}
	return w * int(f.Dimension)
}
