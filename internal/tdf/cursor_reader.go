package tdf

import (
	"encoding/binary"
	"fmt"

	"github.com/csilogger/pbcollect/internal/pbtime"
)

// byteCursor is a forward-only reader over a TDF byte blob: pure, no
// I/O, advances a position and reports how far it got on error so
// callers can produce a useful ParseErr.
type byteCursor struct {
	buf []byte
	pos int
}

func (c *byteCursor) remaining() int { return len(c.buf) - c.pos }

func (c *byteCursor) u8() (byte, error) {
	if c.remaining() < 1 {
		return 0, fmt.Errorf("tdf: truncated at byte %d reading u8", c.pos)
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *byteCursor) u16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, fmt.Errorf("tdf: truncated at byte %d reading u16", c.pos)
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *byteCursor) u32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, fmt.Errorf("tdf: truncated at byte %d reading u32", c.pos)
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// varstr reads a NUL-terminated string.
func (c *byteCursor) varstr() (string, error) {
	start := c.pos
	for c.pos < len(c.buf) {
		if c.buf[c.pos] == 0 {
			s := string(c.buf[start:c.pos])
			c.pos++
			return s, nil
		}
		c.pos++
	}
	return "", fmt.Errorf("tdf: unterminated string starting at byte %d", start)
}

// nsec reads an 8-byte NSec: 4-byte big-endian seconds, 4-byte
// big-endian nanoseconds.
func (c *byteCursor) nsec() (pbtime.NSec, error) {
	sec, err := c.u32()
	if err != nil {
		return pbtime.NSec{}, err
	}
	nsec, err := c.u32()
	if err != nil {
		return pbtime.NSec{}, err
	}
	return pbtime.NSec{Sec: int64(int32(sec)), Nsec: int32(nsec)}, nil
}
