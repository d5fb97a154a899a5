package bmp5

import (
	"encoding/binary"
	"fmt"

	"github.com/csilogger/pbcollect/internal/pakbus/link"
	"github.com/csilogger/pbcollect/internal/pbtime"
	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/csilogger/pbcollect/internal/tdf"
)

const (
	collectModeLastN       = 0x05
	collectModeRange       = 0x06
	collectModeContinuation = 0x08
)

const maxBadRecordAttempts = 3

// CollectData drives one table's worth of collection to completion:
// for TblSize > 1 it queries the last stored record, handles ring-
// wrap/backward-clock anomalies, then walks the collect loop one
// request at a time, reassembling fragmented records and skipping
// records that fail three collection attempts in a row. For
// TblSize <= 1 it collects once.
func (b *BMP5) CollectData(t *tdf.Table, w tdf.Writer) error {
	if t.Size <= 1 {
		return b.collectOnceIntoWriter(t, w)
	}

	lastRecNbr, beginRecTime, err := b.queryLastRecord(t)
	if err != nil {
		return err
	}

	recordsPending := int64(lastRecNbr) - int64(t.NextRecord)
	switch {
	case recordsPending == -1 && t.LastRecordTime.Compare(beginRecTime) != 0:
		b.log.Warn().Str("table", t.Name).Msg("bmp5: different timestamp found for identical record id")
	case recordsPending > 1 && t.LastRecordTime.Before(beginRecTime):
		// Forward progress as expected; nothing to flag.
	}

	if recordsPending >= int64(t.Size) || recordsPending < 0 {
		newIndex := int64(lastRecNbr) - int64(t.Size) + 2
		if newIndex < 1 {
			newIndex = 1
		}
		b.log.Info().
			Str("table", t.Name).
			Uint32("from", t.NextRecord).
			Int64("to", newIndex).
			Msg("bmp5: ring buffer wrapped or reset, adjusting start record")
		t.NextRecord = uint32(newIndex)
		if err := w.Flush(t); err != nil {
			return perr.StorageErr{Table: t.Name, Cause: err}
		}
	}

	if err := w.InitWrite(t); err != nil {
		return perr.StorageErr{Table: t.Name, Cause: err}
	}

	recsPerRequest := recordsPerRequest(t.RecordSize())
	lastBadIndex := ^uint32(0)
	badAttempts := 0

	for t.NextRecord <= lastRecNbr {
		resp, err := b.collectOnce(t, collectModeRange, t.NextRecord, t.NextRecord+recsPerRequest)
		if err != nil {
			return err
		}
		if resp.Status == 0x07 {
			return perr.InvalidTDFErr{Table: t.Name}
		}

		if resp.Fragmented {
			full, err := b.reassemble(t, resp)
			if err != nil {
				return err
			}
			if _, err := tdf.DecodeRecord(w, t, resp.BegRecNbr, resp.RecordTime, full); err != nil {
				return err
			}
			t.LastRecordTime = resp.RecordTime
			t.NextRecord = resp.BegRecNbr + 1
			lastBadIndex, badAttempts = ^uint32(0), 0
			continue
		}

		if resp.NumRecs == 0 {
			if lastBadIndex != t.NextRecord {
				lastBadIndex, badAttempts = t.NextRecord, 1
				continue
			}
			badAttempts++
			if badAttempts < maxBadRecordAttempts {
				continue
			}
			b.log.Error().
				Str("table", t.Name).
				Uint32("record", t.NextRecord).
				Int("attempts", badAttempts).
				Msg("bmp5: failed to collect record, skipping")
			t.NextRecord++
			lastBadIndex, badAttempts = ^uint32(0), 0
			continue
		}

		lastTime, err := decodeBatch(w, t, resp.BegRecNbr, resp.RecordTime, resp.NumRecs, resp.Data)
		if err != nil {
			return err
		}
		t.LastRecordTime = lastTime
		t.NextRecord += uint32(resp.NumRecs)
		lastBadIndex, badAttempts = ^uint32(0), 0
	}

	if err := w.FinishWrite(t); err != nil {
		return perr.StorageErr{Table: t.Name, Cause: err}
	}
	return nil
}

// collectOnceIntoWriter handles tables with an unknown or trivial
// record count: a single collect-last-record request, decoded
// directly.
func (b *BMP5) collectOnceIntoWriter(t *tdf.Table, w tdf.Writer) error {
	if err := w.InitWrite(t); err != nil {
		return perr.StorageErr{Table: t.Name, Cause: err}
	}

	resp, err := b.collectOnce(t, collectModeLastN, 1, 0)
	if err != nil {
		return err
	}
	if resp.Status == 0x07 {
		return perr.InvalidTDFErr{Table: t.Name}
	}

	switch {
	case resp.Fragmented:
		full, err := b.reassemble(t, resp)
		if err != nil {
			return err
		}
		if _, err := tdf.DecodeRecord(w, t, resp.BegRecNbr, resp.RecordTime, full); err != nil {
			return err
		}
		t.LastRecordTime = resp.RecordTime
	case resp.NumRecs > 0:
		lastTime, err := decodeBatch(w, t, resp.BegRecNbr, resp.RecordTime, resp.NumRecs, resp.Data)
		if err != nil {
			return err
		}
		t.LastRecordTime = lastTime
	}

	if err := w.FinishWrite(t); err != nil {
		return perr.StorageErr{Table: t.Name, Cause: err}
	}
	return nil
}

// queryLastRecord issues a collect-last-record inquiry up to three
// times, returning the logger's highest stored record number and its
// timestamp.
func (b *BMP5) queryLastRecord(t *tdf.Table) (uint32, pbtime.NSec, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := b.collectOnce(t, collectModeLastN, 1, 0)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Status == 0x07 {
			return 0, pbtime.NSec{}, perr.InvalidTDFErr{Table: t.Name}
		}
		return resp.BegRecNbr, resp.RecordTime, nil
	}
	return 0, pbtime.NSec{}, fmt.Errorf("bmp5: failed to query last record for %s: %w", t.Name, lastErr)
}

// collectOnce sends one collect command and parses its reply.
func (b *BMP5) collectOnce(t *tdf.Table, mode byte, p1, p2 uint32) (collectResponse, error) {
	tran := b.nextTran()
	body := collectRequestBody(b.security, mode, uint16(t.Number), t.Signature, p1, p2)
	if err := b.ml.Send(b.ml.NewHeader(link.ProtoBMP5, msgCollect, tran), body); err != nil {
		return collectResponse{}, perr.IoErr{Cause: err}
	}
	c, err := b.awaitReply(msgCollectReply, tran)
	if err != nil {
		return collectResponse{}, err
	}
	return parseCollectResponse(c.Body)
}

// reassemble issues mode=0x08 continuation requests until the
// fragmented record started by first is fully accumulated, per the
// fixed record_size or, for variable-sized records, until a chunk
// shorter than 512 bytes arrives. Each continuation chunk is placed
// at the byte offset its reply reports.
func (b *BMP5) reassemble(t *tdf.Table, first collectResponse) ([]byte, error) {
	recordSize := t.RecordSize()
	buf := append([]byte{}, first.Data...)
	lastChunkLen := len(first.Data)
	offset := first.ByteOffset + uint32(lastChunkLen)

	for {
		if recordSize > 0 {
			if int(offset) >= recordSize {
				break
			}
		} else if lastChunkLen < 512 {
			break
		}

		resp, err := b.collectOnce(t, collectModeContinuation, first.BegRecNbr, offset)
		if err != nil {
			return nil, err
		}
		if resp.Status == 0x07 {
			return nil, perr.InvalidTDFErr{Table: t.Name}
		}
		if !resp.Fragmented {
			return nil, fmt.Errorf("bmp5: expected fragment continuation for record %d", first.BegRecNbr)
		}

		end := int(resp.ByteOffset) + len(resp.Data)
		if end > len(buf) {
			buf = append(buf, make([]byte, end-len(buf))...)
		}
		copy(buf[resp.ByteOffset:], resp.Data)
		lastChunkLen = len(resp.Data)
		offset = uint32(end)
	}

	return buf, nil
}

// decodeBatch decodes numRecs sequential records out of data. The
// first carries firstTime; each subsequent record's time is the
// previous plus the table's configured interval.
func decodeBatch(w tdf.Writer, t *tdf.Table, begRecNbr uint32, firstTime pbtime.NSec, numRecs uint16, data []byte) (pbtime.NSec, error) {
	pos := 0
	recTime := firstTime
	for i := uint16(0); i < numRecs; i++ {
		if i > 0 {
			recTime = recTime.Add(t.TimeInterval)
		}
		n, err := tdf.DecodeRecord(w, t, begRecNbr+uint32(i), recTime, data[pos:])
		if err != nil {
			return recTime, err
		}
		pos += n
	}
	return recTime, nil
}

// recordsPerRequest caps a collect range request so its reply stays
// under one packet: 512/record_size records per request, or one at a
// time for large or variable-sized records.
func recordsPerRequest(recordSize int) uint32 {
	if recordSize > 0 && recordSize < 512 {
		return uint32(512 / recordSize)
	}
	return 1
}

func collectRequestBody(security uint16, mode byte, tableNum, sig uint16, p1, p2 uint32) []byte {
	hasP2 := mode == collectModeRange || mode == collectModeContinuation
	n := 13
	if hasP2 {
		n = 17
	}
	body := make([]byte, n)
	binary.BigEndian.PutUint16(body[0:2], security)
	body[2] = mode
	binary.BigEndian.PutUint16(body[3:5], tableNum)
	binary.BigEndian.PutUint16(body[5:7], sig)
	binary.BigEndian.PutUint32(body[7:11], p1)
	if hasP2 {
		binary.BigEndian.PutUint32(body[11:15], p2)
	}
	return body
}
