package bmp5

import (
	"bytes"
	"fmt"

	"github.com/csilogger/pbcollect/internal/pakbus/link"
	"github.com/csilogger/pbcollect/internal/perr"
)

const fileUploadSwath = 0x03D9

var fileUploadStatusErrors = map[byte]string{
	0x01: "permission denied",
	0x0D: "invalid filename",
	0x0E: "file currently unavailable",
}

// FetchTDF uploads filename (e.g. "CPU:Def.TDF") from the logger and
// returns its complete contents. Chunks are accumulated in memory
// rather than streamed to a temp file; the caller is responsible for
// persisting the result if it wants a cache on disk.
func (b *BMP5) FetchTDF(filename string) ([]byte, error) {
	var out bytes.Buffer
	offset := uint32(0)

	for {
		tran := b.nextTran()
		body := fileUploadRequest(b.security, filename, false, offset, fileUploadSwath)
		if err := b.ml.Send(b.ml.NewHeader(link.ProtoBMP5, msgFileUpload, tran), body); err != nil {
			b.closeFileUpload(filename)
			return nil, perr.IoErr{Cause: err}
		}

		c, err := b.awaitReply(msgFileReply, tran)
		if err != nil {
			b.closeFileUpload(filename)
			return nil, err
		}
		if len(c.Body) < 5 {
			b.closeFileUpload(filename)
			return nil, perr.ParseErr{Reason: "file upload reply too short"}
		}

		status := c.Body[0]
		if status != 0 {
			b.closeFileUpload(filename)
			reason, ok := fileUploadStatusErrors[status]
			if !ok {
				reason = fmt.Sprintf("status %#02x", status)
			}
			return nil, fmt.Errorf("bmp5: file upload of %s failed: %s", filename, reason)
		}

		chunk := c.Body[5:]
		out.Write(chunk)
		offset += uint32(len(chunk))

		if len(chunk) < fileUploadSwath {
			break
		}
	}

	return out.Bytes(), nil
}

// closeFileUpload sends the final close-flag request so the logger
// releases the file, ignoring any further error — this is best-effort
// cleanup after a failed transfer.
func (b *BMP5) closeFileUpload(filename string) {
	tran := b.nextTran()
	body := fileUploadRequest(b.security, filename, true, 0, 0)
	if err := b.ml.Send(b.ml.NewHeader(link.ProtoBMP5, msgFileUpload, tran), body); err != nil {
		b.log.Warn().Err(err).Str("file", filename).Msg("bmp5: failed to close file upload")
	}
}

func fileUploadRequest(security uint16, filename string, closeFlag bool, offset uint32, swath uint16) []byte {
	body := make([]byte, 0, 2+len(filename)+1+1+4+2)
	sec := make([]byte, 2)
	body = append(body, sec...)
	body[0], body[1] = byte(security>>8), byte(security)
	body = append(body, []byte(filename)...)
	body = append(body, 0x00)
	if closeFlag {
		body = append(body, 0x01)
	} else {
		body = append(body, 0x00)
	}
	body = append(body, byte(offset>>24), byte(offset>>16), byte(offset>>8), byte(offset))
	body = append(body, byte(swath>>8), byte(swath))
	return body
}
