package tdf

import (
	"github.com/csilogger/pbcollect/internal/pakbus/framer"
	"github.com/csilogger/pbcollect/internal/perr"
)

// Parse decodes a raw TDF blob (as fetched by BMP5's FileUpload) into
// an ordered list of Tables. Table numbers are 1-based, assigned in
// the order the TDF lists them; fields with empty names are dropped;
// duplicate table names are ignored (first kept).
func Parse(blob []byte) ([]*Table, error) {
	c := &byteCursor{buf: blob}

	if _, err := c.u8(); err != nil { // FSL version, unused
		return nil, perr.ParseErr{Reason: err.Error()}
	}

	seen := map[string]bool{}
	var tables []*Table
	number := 0

	for c.remaining() > 0 {
		name, err := c.varstr()
		if err != nil {
			// Trailing bytes with no NUL terminator are treated as
			// padding after the last table; stop cleanly rather than
			// erroring on them.
			break
		}
		if name == "" { // a zero byte where a name was expected ends the list
			break
		}

		tbl, sig, err := parseTableBody(c, name)
		if err != nil {
			return nil, perr.ParseErr{Reason: err.Error()}
		}

		if seen[name] {
			continue
		}
		seen[name] = true
		number++
		tbl.Number = number
		tbl.Signature = sig
		tables = append(tables, tbl)
	}

	return tables, nil
}

func parseTableBody(c *byteCursor, name string) (*Table, uint16, error) {
	bodyStart := c.pos

	size, err := c.u32()
	if err != nil {
		return nil, 0, err
	}
	timeType, err := c.u8()
	if err != nil {
		return nil, 0, err
	}
	timeInfo, err := c.nsec()
	if err != nil {
		return nil, 0, err
	}
	timeInterval, err := c.nsec()
	if err != nil {
		return nil, 0, err
	}

	fields, err := parseFieldList(c)
	if err != nil {
		return nil, 0, err
	}

	term, err := c.u8()
	if err != nil {
		return nil, 0, err
	}
	if term != 0 {
		return nil, 0, errNotZero("table terminator")
	}

	sig := framer.CalcSig(c.buf[bodyStart:c.pos], framer.SeedSig)

	return &Table{
		Name:         name,
		Size:         size,
		TimeType:     timeType,
		TimeInfo:     timeInfo,
		TimeInterval: timeInterval,
		Fields:       fields,
	}, sig, nil
}

func parseFieldList(c *byteCursor) ([]Field, error) {
	var fields []Field
	for {
		typeByte, err := c.u8()
		if err != nil {
			return nil, err
		}
		if typeByte == 0 {
			return fields, nil
		}
		ft := FieldType(typeByte &^ 0x80)

		name, err := c.varstr()
		if err != nil {
			return nil, err
		}
		if _, err := c.u8(); err != nil { // extra zero terminator after name
			return nil, err
		}
		processing, err := c.varstr()
		if err != nil {
			return nil, err
		}
		unit, err := c.varstr()
		if err != nil {
			return nil, err
		}
		description, err := c.varstr()
		if err != nil {
			return nil, err
		}
		beginIndex, err := c.u32()
		if err != nil {
			return nil, err
		}
		dimension, err := c.u32()
		if err != nil {
			return nil, err
		}

		var subDims []uint32
		for {
			sd, err := c.u32()
			if err != nil {
				return nil, err
			}
			if sd == 0 {
				break
			}
			subDims = append(subDims, sd)
		}

		if name == "" {
			continue
		}
		fields = append(fields, Field{
			Type:          ft,
			Name:          name,
			Processing:    processing,
			Unit:          unit,
			Description:   description,
			BeginIndex:    beginIndex,
			Dimension:     dimension,
			SubDimensions: subDims,
		})
	}
}

type parseError string

func (e parseError) Error() string { return string(e) }

func errNotZero(what string) error { return parseError("tdf: expected zero " + what) }
