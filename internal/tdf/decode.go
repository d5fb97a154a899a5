package tdf

import (
	"encoding/binary"
	"math"

	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/csilogger/pbcollect/internal/pbtime"
)

// UnimplementedSentinel is emitted for every value of a field type
// this decoder does not implement.
const UnimplementedSentinel int32 = -9999

// DecodeRecord decodes one record from data into w, in field-list
// order, and returns the number of bytes of data consumed so the
// caller (BMP5's CollectData) can advance to the next record packed
// into the same response.
func DecodeRecord(w Writer, t *Table, recordIndex uint32, recordTime pbtime.NSec, data []byte) (int, error) {
	if err := w.RecordBegin(t, recordIndex, recordTime); err != nil {
		return 0, err
	}

	pos := 0
	for _, f := range t.Fields {
		n, err := decodeField(w, f, data[pos:])
		if err != nil {
			return pos, perr.ParseErr{Reason: err.Error()}
		}
		pos += n
	}

	if err := w.RecordEnd(t); err != nil {
		return pos, err
	}
	return pos, nil
}

func decodeField(w Writer, f Field, data []byte) (int, error) {
	if f.IsString() {
		return decodeString(w, f, data)
	}

	count := int(f.Dimension)
	if count == 0 {
		count = 1
	}

	pos := 0
	for i := 0; i < count; i++ {
		n, err := decodeScalar(w, f.Type, data[pos:])
		if err != nil {
			return pos, err
		}
		pos += n
	}
	return pos, nil
}

func decodeString(w Writer, f Field, data []byte) (int, error) {
	if f.Type == FieldString {
		n := int(f.Dimension)
		if n > len(data) {
			n = len(data)
		}
		raw := data[:n]
		end := len(raw)
		for i, b := range raw {
			if b == 0x00 || b == 0x0D || b == 0x0A {
				end = i
				break
			}
		}
		if err := w.StoreString(string(raw[:end])); err != nil {
			return n, err
		}
		return n, nil
	}

	// FieldASCII: NUL-terminated, consumes length+1 bytes.
	end := 0
	for end < len(data) && data[end] != 0x00 {
		end++
	}
	consumed := end
	if end < len(data) {
		consumed++ // include the terminator
	}
	if err := w.StoreString(string(data[:end])); err != nil {
		return consumed, err
	}
	return consumed, nil
}

func decodeScalar(w Writer, ft FieldType, data []byte) (int, error) {
	switch ft {
	case FieldUInt1:
		return 1, w.StoreU32(uint32(data[0]))
	case FieldUInt2:
		return 2, w.StoreU32(uint32(binary.BigEndian.Uint16(data)))
	case FieldUInt4:
		return 4, w.StoreU32(binary.BigEndian.Uint32(data))
	case FieldInt1:
		return 1, w.StoreI32(int32(int8(data[0])))
	case FieldInt2:
		return 2, w.StoreI32(int32(int16(binary.BigEndian.Uint16(data))))
	case FieldInt4:
		return 4, w.StoreI32(int32(binary.BigEndian.Uint32(data)))
	case FieldFS2:
		return 2, w.StoreF32(decodeFinalStorage(binary.BigEndian.Uint16(data)))
	case FieldFP4:
		return 4, w.StoreF32(decodeIEEESingle(binary.BigEndian.Uint32(data)))
	case FieldBool, FieldBool2, FieldBool4:
		return 1, w.StoreBool(data[0]&0x80 != 0)
	case FieldSecT:
		return 4, w.StoreU32(binary.BigEndian.Uint32(data))
	case FieldUInt6:
		// Read the u32 of the low 4 bytes; advance 6 total.
		v := binary.BigEndian.Uint32(data[2:6])
		return 6, w.StoreU32(v)
	case FieldFlags1:
		return 1, w.StoreU32(uint32(data[0]))
	default:
		width := 1
		if w, ok := unimplementedWidths[ft]; ok {
			width = w
		}
		return width, w.StoreUnimplemented()
	}
}

// decodeFinalStorage decodes Campbell's 2-byte low-resolution float
// encoding: sign bit 15, decimal exponent bits 14-13, 13-bit
// magnitude. Magnitudes above 6999 are the logger's own out-of-range
// sentinel and are mapped to -9999.
func decodeFinalStorage(u uint16) float64 {
	sign := 1.0
	if u>>15 != 0 {
		sign = -1.0
	}
	exp := int((u >> 13) & 0x3)
	mag := float64(u&0x1FFF) * math.Pow(10, -float64(exp))
	if mag > 6999 {
		return -9999
	}
	return sign * mag
}

// decodeIEEESingle reconstructs an IEEE-754 single from a big-endian
// u32. math.Float32frombits does a bit-exact reinterpretation and
// gets the e=0 (subnormal/zero) and e=255 (inf/NaN) special cases
// right, which a hand-rolled sign/exponent/mantissa multiply would
// need its own branches for.
func decodeIEEESingle(u uint32) float64 {
	return float64(math.Float32frombits(u))
}
