// Package link implements the PakBus MessageLayer: the 10-byte
// header codec, the link-state handshake sub-protocol, packet
// classification, and unsolicited-Hello reply interleaving. PakCtrl
// and BMP5 are both just callers that pick a Protocol code and a
// TransactionKind, rather than subclasses of a base transport.
package link

// Protocol identifies which higher-layer protocol a packet body
// belongs to.
type Protocol byte

const (
	ProtoPakCtrl Protocol = 0
	ProtoBMP5    Protocol = 1
)

// LinkState is the 4-bit link-control code carried in the high
// nibble of header byte 0.
type LinkState byte

const (
	LinkRing     LinkState = 0x9
	LinkReady    LinkState = 0xA
	LinkFinished LinkState = 0xB
)

// LocalAddress is the well-known address the local endpoint always
// uses when it has not been assigned a node-specific address.
const LocalAddress uint16 = 0x0FFE

// Address identifies a PakBus endpoint.
type Address struct {
	PhysAddr   uint16 // 12 bits
	NodeID     uint16 // 12 bits
	SecurityCode uint16
}

// Header is the parsed form of a full 10-byte PakBus header.
type Header struct {
	Link        LinkState
	DstPhys     uint16
	ExpectMore  byte // 2 bits
	Priority    byte // 2 bits
	SrcPhys     uint16
	Proto       Protocol
	DstNode     uint16
	HopCnt      byte // 4 bits
	SrcNode     uint16
	MsgType     byte
	TranNbr     byte
}

// ExpectMore values, per the PakBus wire format.
const (
	ExpectMoreYes       byte = 0
	ExpectMoreNo        byte = 1
	ExpectMoreExpectMore byte = 2
	ExpectMoreNeutral   byte = 3
)

// EncodeHeader serializes the 10-byte fixed header.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, 10)
	buf[0] = byte(h.Link)<<4 | byte(h.DstPhys>>8)&0x0F
	buf[1] = byte(h.DstPhys)
	buf[2] = (h.ExpectMore&0x3)<<6 | (h.Priority&0x3)<<4 | byte(h.SrcPhys>>8)&0x0F
	buf[3] = byte(h.SrcPhys)
	buf[4] = byte(h.Proto)<<4 | byte(h.DstNode>>8)&0x0F
	buf[5] = byte(h.DstNode)
	buf[6] = (h.HopCnt&0xF)<<4 | byte(h.SrcNode>>8)&0x0F
	buf[7] = byte(h.SrcNode)
	buf[8] = h.MsgType
	buf[9] = h.TranNbr
	return buf
}

// DecodeHeader parses a 10-byte fixed header from the front of buf.
// buf must be at least 10 bytes; the application body is
// buf[10:].
func DecodeHeader(buf []byte) Header {
	return Header{
		Link:       LinkState(buf[0] >> 4),
		DstPhys:    (uint16(buf[0]&0x0F) << 8) | uint16(buf[1]),
		ExpectMore: (buf[2] >> 6) & 0x3,
		Priority:   (buf[2] >> 4) & 0x3,
		SrcPhys:    (uint16(buf[2]&0x0F) << 8) | uint16(buf[3]),
		Proto:      Protocol(buf[4] >> 4),
		DstNode:    (uint16(buf[4]&0x0F) << 8) | uint16(buf[5]),
		HopCnt:     (buf[6] >> 4) & 0xF,
		SrcNode:    (uint16(buf[6]&0x0F) << 8) | uint16(buf[7]),
		MsgType:    buf[8],
		TranNbr:    buf[9],
	}
}

// linkStateBytes encodes just the first 4 or 8 bytes of Header, the
// link-state-only subpacket used during handshake before a full
// transaction header is meaningful. long
// additionally carries DstNode/HopCnt/SrcNode (bytes 4-7).
func linkStateBytes(h Header, long bool) []byte {
	if !long {
		buf := make([]byte, 4)
		buf[0] = byte(h.Link)<<4 | byte(h.DstPhys>>8)&0x0F
		buf[1] = byte(h.DstPhys)
		buf[2] = (h.ExpectMore&0x3)<<6 | (h.Priority&0x3)<<4 | byte(h.SrcPhys>>8)&0x0F
		buf[3] = byte(h.SrcPhys)
		return buf
	}
	buf := make([]byte, 8)
	buf[0] = byte(h.Link)<<4 | byte(h.DstPhys>>8)&0x0F
	buf[1] = byte(h.DstPhys)
	buf[2] = (h.ExpectMore&0x3)<<6 | (h.Priority&0x3)<<4 | byte(h.SrcPhys>>8)&0x0F
	buf[3] = byte(h.SrcPhys)
	buf[4] = byte(h.Proto)<<4 | byte(h.DstNode>>8)&0x0F
	buf[5] = byte(h.DstNode)
	buf[6] = (h.HopCnt&0xF)<<4 | byte(h.SrcNode>>8)&0x0F
	buf[7] = byte(h.SrcNode)
	return buf
}
