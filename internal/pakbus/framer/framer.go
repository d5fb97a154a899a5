package framer

import "github.com/csilogger/pbcollect/internal/perr"

// ByteReader is the minimal read contract the Framer needs from the
// transport: a non-blocking-ish call that returns whatever bytes are
// currently available, zero meaning none right now. Kept as a plain
// {read, write} trait pair rather than an io.ReadWriter so a fake
// transport in tests only has to implement the two calls actually used.
type ByteReader interface {
	Read(buf []byte) (int, error)
}

// ByteWriter is the minimal write contract: a blocking write of the
// whole slice.
type ByteWriter interface {
	Write(bytes []byte) error
}

const gulpSize = 1024

// Framer turns a raw byte stream into a queue of Packets (ingress)
// and serializes Packets back onto the wire (egress). It owns no
// state across calls other than the empty-read streak used for the
// NoResponse rule — each ReadPackets call starts a fresh scan of
// whatever bytes are currently queued plus what the transport hands
// back.
type Framer struct {
	rw           interface {
		ByteReader
		ByteWriter
	}
	emptyStreak int
}

// New wraps a transport exposing the Read/Write contract above.
func New(rw interface {
	ByteReader
	ByteWriter
}) *Framer {
	return &Framer{rw: rw}
}

// ReadPackets gulps all currently-available bytes in 1024-byte reads
// until the transport returns zero, splits the accumulated buffer on
// SyncByte, and returns one Packet per pair of consecutive syncs. A
// trailing, unmatched sync yields a final incomplete Packet. Three
// successive all-zero read cycles (this call's and the prior call's)
// fail with NoResponseErr.
func (f *Framer) ReadPackets() ([]Packet, error) {
	var buf []byte
	gotAny := false

	for {
		chunk := make([]byte, gulpSize)
		n, err := f.rw.Read(chunk)
		if err != nil {
			return nil, perr.IoErr{Cause: err}
		}
		if n == 0 {
			break
		}
		gotAny = true
		buf = append(buf, chunk[:n]...)
	}

	if gotAny {
		f.emptyStreak = 0
	} else {
		f.emptyStreak++
		if f.emptyStreak >= 3 {
			return nil, perr.NoResponseErr{}
		}
		return nil, nil
	}

	if flusher, ok := f.rw.(interface{ Flush() error }); ok {
		_ = flusher.Flush()
	}

	return splitOnSync(buf), nil
}

// splitOnSync scans buf for SyncByte and returns one Packet per
// strictly-interior span between two consecutive syncs, unquoted. A
// sync with no following sync marks a final incomplete packet (its
// payload is whatever bytes followed the last sync, unquoted).
func splitOnSync(buf []byte) []Packet {
	var packets []Packet
	start := -1
	for i, b := range buf {
		if b != SyncByte {
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		payload := buf[start+1 : i]
		packets = append(packets, Packet{Payload: Unquote(payload), Complete: true})
		start = i
	}
	if start >= 0 && start < len(buf)-1 {
		packets = append(packets, Packet{Payload: Unquote(buf[start+1:]), Complete: false})
	}
	return packets
}

// WriteRaw writes bytes unmodified. Used only for the wake-up
// preamble, which is not itself a quoted PakBus payload.
func (f *Framer) WriteRaw(bytes []byte) error {
	return f.rw.Write(bytes)
}

// WritePakbus frames payload between two SyncBytes, quoting interior
// occurrences of SyncByte/QuoteByte. The framing bytes themselves are
// never quoted.
func (f *Framer) WritePakbus(payload []byte) error {
	quoted := Quote(payload)
	out := make([]byte, 0, len(quoted)+2)
	out = append(out, SyncByte)
	out = append(out, quoted...)
	out = append(out, SyncByte)
	return f.rw.Write(out)
}
