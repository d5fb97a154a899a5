package bmp5

import (
	"encoding/binary"
	"fmt"

	"github.com/csilogger/pbcollect/internal/pbtime"
)

// collectResponse is the parsed body of a 0x89 reply to a collect
// command: status(1), table_num(2), beg_rec_nbr(4), flags(2 or 4),
// record_time(8), data...
type collectResponse struct {
	Status      byte
	TableNum    uint16
	BegRecNbr   uint32
	Fragmented  bool
	ByteOffset  uint32 // valid when Fragmented
	NumRecs     uint16 // valid when !Fragmented
	RecordTime  pbtime.NSec
	Data        []byte
}

func parseCollectResponse(body []byte) (collectResponse, error) {
	if len(body) < 9 {
		return collectResponse{}, fmt.Errorf("bmp5: collect reply too short (%d bytes)", len(body))
	}

	r := collectResponse{
		Status:    body[0],
		TableNum:  binary.BigEndian.Uint16(body[1:3]),
		BegRecNbr: binary.BigEndian.Uint32(body[3:7]),
	}

	flagsByte := body[7]
	r.Fragmented = flagsByte&0x80 != 0

	var rest []byte
	if r.Fragmented {
		if len(body) < 19 {
			return collectResponse{}, fmt.Errorf("bmp5: fragmented collect reply too short")
		}
		r.ByteOffset = binary.BigEndian.Uint32(body[7:11]) &^ 0x80000000
		rest = body[11:]
	} else {
		if len(body) < 17 {
			return collectResponse{}, fmt.Errorf("bmp5: collect reply too short for record time")
		}
		r.NumRecs = binary.BigEndian.Uint16(body[7:9]) & 0x7FFF
		rest = body[9:]
	}

	if len(rest) < 8 {
		return collectResponse{}, fmt.Errorf("bmp5: collect reply missing record time")
	}
	sec := int32(binary.BigEndian.Uint32(rest[0:4]))
	nsec := int32(binary.BigEndian.Uint32(rest[4:8]))
	r.RecordTime = pbtime.NSec{Sec: int64(sec), Nsec: nsec}
	r.Data = rest[8:]

	return r, nil
}
