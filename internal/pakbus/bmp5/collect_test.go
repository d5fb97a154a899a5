package bmp5

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/csilogger/pbcollect/internal/pakbus/framer"
	"github.com/csilogger/pbcollect/internal/pakbus/link"
	"github.com/csilogger/pbcollect/internal/pbtime"
	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/csilogger/pbcollect/internal/tdf"
	"github.com/rs/zerolog"
)

// fakeTableWriter records every call, the same scripted-recorder idiom
// tdf's own fakeWriter test double uses.
type fakeTableWriter struct {
	u32s       []uint32
	initCalls  int
	finishCalls int
	flushCalls int
}

func (f *fakeTableWriter) InitWrite(t *tdf.Table) error { f.initCalls++; return nil }
func (f *fakeTableWriter) RecordBegin(t *tdf.Table, idx uint32, rt pbtime.NSec) error { return nil }
func (f *fakeTableWriter) StoreU32(v uint32) error { f.u32s = append(f.u32s, v); return nil }
func (f *fakeTableWriter) StoreI32(v int32) error     { return nil }
func (f *fakeTableWriter) StoreF32(v float64) error   { return nil }
func (f *fakeTableWriter) StoreBool(v bool) error     { return nil }
func (f *fakeTableWriter) StoreString(v string) error { return nil }
func (f *fakeTableWriter) StoreUnimplemented() error  { return nil }
func (f *fakeTableWriter) RecordEnd(t *tdf.Table) error { return nil }
func (f *fakeTableWriter) FinishWrite(t *tdf.Table) error { f.finishCalls++; return nil }
func (f *fakeTableWriter) Flush(t *tdf.Table) error       { f.flushCalls++; return nil }

func buildCollectBody(status byte, tableNum uint16, begRecNbr uint32, fragmented bool, byteOffsetOrNumRecs uint32, data []byte) []byte {
	head := make([]byte, 7)
	head[0] = status
	binary.BigEndian.PutUint16(head[1:3], tableNum)
	binary.BigEndian.PutUint32(head[3:7], begRecNbr)

	var flags []byte
	if fragmented {
		flags = make([]byte, 4)
		binary.BigEndian.PutUint32(flags, byteOffsetOrNumRecs|0x80000000)
	} else {
		flags = make([]byte, 2)
		binary.BigEndian.PutUint16(flags, uint16(byteOffsetOrNumRecs))
	}

	recTime := make([]byte, 8)

	body := append([]byte{}, head...)
	body = append(body, flags...)
	body = append(body, recTime...)
	body = append(body, data...)
	return body
}

func newCollectTestBMP5(queue [][]byte) *BMP5 {
	fr := framer.New(&queueTransport{queue: queue})
	self := link.Address{PhysAddr: link.LocalAddress, NodeID: link.LocalAddress}
	peer := link.Address{PhysAddr: 1, NodeID: 1}
	ml := link.New(fr, self, peer, zerolog.Nop())
	return New(ml, zerolog.Nop(), 0)
}

func collectReplyWire(tran byte, body []byte) []byte {
	return frameWire(replyHeader(msgCollectReply, tran), body)
}

func u32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func newUInt4Table(size uint32, nextRecord uint32) *tdf.Table {
	return &tdf.Table{
		Name:       "Test",
		Number:     1,
		Size:       size,
		Fields:     []tdf.Field{{Type: tdf.FieldUInt4}},
		NextRecord: nextRecord,
	}
}

func TestCollectDataNormalRange(t *testing.T) {
	tbl := newUInt4Table(10, 1)

	queryReply := buildCollectBody(0, 1, 2, false, 0, nil)
	mainData := append(u32Bytes(1), u32Bytes(2)...)
	mainReply := buildCollectBody(0, 1, 1, false, 2, mainData)

	wires := [][]byte{
		collectReplyWire(1, queryReply),
		collectReplyWire(2, mainReply),
	}
	b := newCollectTestBMP5(wires)
	w := &fakeTableWriter{}

	if err := b.CollectData(tbl, w); err != nil {
		t.Fatalf("CollectData: %v", err)
	}
	if len(w.u32s) != 2 || w.u32s[0] != 1 || w.u32s[1] != 2 {
		t.Fatalf("got %v, want [1 2]", w.u32s)
	}
	if tbl.NextRecord != 3 {
		t.Fatalf("NextRecord = %d, want 3", tbl.NextRecord)
	}
	if w.finishCalls != 1 {
		t.Fatalf("FinishWrite called %d times, want 1", w.finishCalls)
	}
}

func TestCollectDataRingBufferWrapResetsToOne(t *testing.T) {
	tbl := newUInt4Table(500, 100)

	queryReply := buildCollectBody(0, 1, 7, false, 0, nil)

	data := make([]byte, 0, 7*4)
	for i := uint32(1); i <= 7; i++ {
		data = append(data, u32Bytes(i)...)
	}
	mainReply := buildCollectBody(0, 1, 1, false, 7, data)

	wires := [][]byte{
		collectReplyWire(1, queryReply),
		collectReplyWire(2, mainReply),
	}
	b := newCollectTestBMP5(wires)
	w := &fakeTableWriter{}

	if err := b.CollectData(tbl, w); err != nil {
		t.Fatalf("CollectData: %v", err)
	}
	if w.flushCalls != 1 {
		t.Fatalf("Flush called %d times, want 1 (ring wrap should flush)", w.flushCalls)
	}
	if len(w.u32s) != 7 {
		t.Fatalf("got %d records, want 7", len(w.u32s))
	}
	if tbl.NextRecord != 8 {
		t.Fatalf("NextRecord = %d, want 8", tbl.NextRecord)
	}
}

func TestCollectDataFragmentedReassembly(t *testing.T) {
	tbl := newUInt4Table(5, 1)

	queryReply := buildCollectBody(0, 1, 1, false, 0, nil)
	firstFrag := buildCollectBody(0, 1, 1, true, 0, []byte{0x00, 0x00})
	secondFrag := buildCollectBody(0, 1, 1, true, 2, []byte{0x00, 0x01})

	wires := [][]byte{
		collectReplyWire(1, queryReply),
		collectReplyWire(2, firstFrag),
		collectReplyWire(3, secondFrag),
	}
	b := newCollectTestBMP5(wires)
	w := &fakeTableWriter{}

	if err := b.CollectData(tbl, w); err != nil {
		t.Fatalf("CollectData: %v", err)
	}
	if len(w.u32s) != 1 || w.u32s[0] != 1 {
		t.Fatalf("got %v, want [1] (reassembled 4 bytes = 1)", w.u32s)
	}
	if tbl.NextRecord != 2 {
		t.Fatalf("NextRecord = %d, want 2", tbl.NextRecord)
	}
}

func TestCollectDataSkipsBadRecordAfterThreeAttempts(t *testing.T) {
	tbl := newUInt4Table(5, 1)

	queryReply := buildCollectBody(0, 1, 3, false, 0, nil)
	badReply := buildCollectBody(0, 1, 1, false, 0, nil) // NumRecs == 0
	okData := append(u32Bytes(2), u32Bytes(3)...)
	okReply := buildCollectBody(0, 1, 2, false, 2, okData)

	wires := [][]byte{
		collectReplyWire(1, queryReply),
		collectReplyWire(2, badReply),
		collectReplyWire(3, badReply),
		collectReplyWire(4, badReply),
		collectReplyWire(5, okReply),
	}
	b := newCollectTestBMP5(wires)
	w := &fakeTableWriter{}

	if err := b.CollectData(tbl, w); err != nil {
		t.Fatalf("CollectData: %v", err)
	}
	if len(w.u32s) != 2 || w.u32s[0] != 2 || w.u32s[1] != 3 {
		t.Fatalf("got %v, want [2 3] (record 1 skipped)", w.u32s)
	}
	if tbl.NextRecord != 4 {
		t.Fatalf("NextRecord = %d, want 4", tbl.NextRecord)
	}
}

func TestCollectDataInvalidTDFPropagates(t *testing.T) {
	tbl := newUInt4Table(1, 1) // Size <= 1 takes the single-shot path

	reply := buildCollectBody(0x07, 1, 0, false, 0, nil)
	wires := [][]byte{collectReplyWire(1, reply)}
	b := newCollectTestBMP5(wires)
	w := &fakeTableWriter{}

	err := b.CollectData(tbl, w)
	var invalid perr.InvalidTDFErr
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want perr.InvalidTDFErr", err)
	}
}
