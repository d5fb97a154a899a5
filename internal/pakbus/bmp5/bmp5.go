// Package bmp5 implements the BMP5 application protocol: clock
// synchronization, program statistics, table-definition-file upload,
// and data collection with fragment reassembly and ring-buffer-wrap
// recovery.
package bmp5

import (
	"encoding/binary"
	"fmt"

	"github.com/csilogger/pbcollect/internal/pakbus/link"
	"github.com/csilogger/pbcollect/internal/pbtime"
	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/rs/zerolog"
)

const (
	msgClock       = 0x17
	msgClockReply  = 0x97
	msgProgStats   = 0x18
	msgProgReply   = 0x98
	msgFileUpload  = 0x1D
	msgFileReply   = 0x9D
	msgCollect     = 0x09
	msgCollectReply = 0x89
)

// replyAttempts bounds how many ReadClassified calls BMP5 makes while
// waiting for a single reply before giving up. Each call blocks for
// up to one transport VTIME window, so this is not a busy spin.
const replyAttempts = 5

// BMP5 drives one session's worth of BMP5 transactions over a shared
// MessageLayer, the same per-session-counter shape PakCtrl's
// Transaction uses.
type BMP5 struct {
	ml       *link.MessageLayer
	log      zerolog.Logger
	security uint16
	tranNbr  byte
}

// New builds a BMP5 driver. security is the logger's configured
// security code, sent with every request.
func New(ml *link.MessageLayer, log zerolog.Logger, security uint16) *BMP5 {
	return &BMP5{ml: ml, log: log, security: security}
}

func (b *BMP5) nextTran() byte {
	b.tranNbr++
	return b.tranNbr
}

func (b *BMP5) putSecurity(buf []byte) {
	binary.BigEndian.PutUint16(buf, b.security)
}

// awaitReply polls for a matching reply, handling delivery failures
// inline and letting the MessageLayer's own Hello/Ring interleave
// absorb anything else while it waits.
func (b *BMP5) awaitReply(msgType, tranNbr byte) (link.Classified, error) {
	for i := 0; i < replyAttempts; i++ {
		classified, err := b.ml.ReadClassified(msgType, tranNbr)
		if err != nil {
			return link.Classified{}, err
		}
		for _, c := range classified {
			switch c.Outcome {
			case link.OutcomeMatch:
				return c, nil
			case link.OutcomeDeliveryFailure:
				return link.Classified{}, perr.DeliveryFailureErr{SubCode: c.SubCode}
			}
		}
	}
	return link.Classified{}, perr.HandshakeFailureErr{Reason: "no reply to BMP5 request"}
}

// Clock drives msg_type 0x17. Passing (0, 0) is a query: it always
// succeeds on any valid 0x97 reply and returns the logger's current
// time. Any other value is a clock-set request: it succeeds only
// when the reply's status byte is zero.
func (b *BMP5) Clock(secsAdj, nsecsAdj int32) (pbtime.NSec, error) {
	tran := b.nextTran()
	body := make([]byte, 10)
	b.putSecurity(body)
	binary.BigEndian.PutUint32(body[2:], uint32(secsAdj))
	binary.BigEndian.PutUint32(body[6:], uint32(nsecsAdj))

	if err := b.ml.Send(b.ml.NewHeader(link.ProtoBMP5, msgClock, tran), body); err != nil {
		return pbtime.NSec{}, perr.IoErr{Cause: err}
	}

	c, err := b.awaitReply(msgClockReply, tran)
	if err != nil {
		return pbtime.NSec{}, err
	}
	if len(c.Body) < 5 {
		return pbtime.NSec{}, perr.ParseErr{Reason: "clock reply too short"}
	}

	query := secsAdj == 0 && nsecsAdj == 0
	if !query && c.Body[0] != 0 {
		return pbtime.NSec{}, perr.HandshakeFailureErr{Reason: "clock set rejected by logger"}
	}

	sec := int32(binary.BigEndian.Uint32(c.Body[1:5]))
	return pbtime.NSec{Sec: int64(sec)}, nil
}

// ProgStats is the parsed body of a GetProgStats reply.
type ProgStats struct {
	OSVersion    string
	OSSig        uint16
	Serial       string
	PowerupProg  string
	ProgName     string
	ProgSig      uint16
}

// GetProgStats drives msg_type 0x18.
func (b *BMP5) GetProgStats() (ProgStats, error) {
	tran := b.nextTran()
	body := make([]byte, 2)
	b.putSecurity(body)

	if err := b.ml.Send(b.ml.NewHeader(link.ProtoBMP5, msgProgStats, tran), body); err != nil {
		return ProgStats{}, perr.IoErr{Cause: err}
	}

	c, err := b.awaitReply(msgProgReply, tran)
	if err != nil {
		return ProgStats{}, err
	}
	if len(c.Body) < 1 {
		return ProgStats{}, perr.ParseErr{Reason: "prog stats reply too short"}
	}
	if c.Body[0] != 0 {
		return ProgStats{}, perr.HandshakeFailureErr{Reason: fmt.Sprintf("GetProgStats failed, status %#02x", c.Body[0])}
	}

	cur := &fieldCursor{buf: c.Body[1:]}
	var stats ProgStats
	if stats.OSVersion, err = cur.varstr(); err != nil {
		return ProgStats{}, perr.ParseErr{Reason: err.Error()}
	}
	if stats.OSSig, err = cur.u16(); err != nil {
		return ProgStats{}, perr.ParseErr{Reason: err.Error()}
	}
	if stats.Serial, err = cur.varstr(); err != nil {
		return ProgStats{}, perr.ParseErr{Reason: err.Error()}
	}
	if stats.PowerupProg, err = cur.varstr(); err != nil {
		return ProgStats{}, perr.ParseErr{Reason: err.Error()}
	}
	if stats.ProgName, err = cur.varstr(); err != nil {
		return ProgStats{}, perr.ParseErr{Reason: err.Error()}
	}
	if stats.ProgSig, err = cur.u16(); err != nil {
		return ProgStats{}, perr.ParseErr{Reason: err.Error()}
	}
	return stats, nil
}

// fieldCursor is the same forward-only reader idiom as tdf's
// byteCursor, kept local since BMP5 parses its own small positional
// replies and has no reason to depend on the tdf package for it.
type fieldCursor struct {
	buf []byte
	pos int
}

func (c *fieldCursor) u16() (uint16, error) {
	if len(c.buf)-c.pos < 2 {
		return 0, fmt.Errorf("bmp5: truncated reading u16 at %d", c.pos)
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *fieldCursor) varstr() (string, error) {
	start := c.pos
	for c.pos < len(c.buf) {
		if c.buf[c.pos] == 0 {
			s := string(c.buf[start:c.pos])
			c.pos++
			return s, nil
		}
		c.pos++
	}
	return "", fmt.Errorf("bmp5: unterminated string at %d", start)
}
