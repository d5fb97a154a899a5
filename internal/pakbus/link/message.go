package link

import (
	"fmt"

	"github.com/csilogger/pbcollect/internal/pakbus/framer"
	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/rs/zerolog"
)

// Outcome classifies one received, signature-valid packet.
type Outcome int

const (
	// OutcomeLinkState is a bare link-state packet (Ring/Ready/
	// Finished). Ring packets are answered with Ready before this is
	// returned to the caller.
	OutcomeLinkState Outcome = iota
	// OutcomeMatch is an application packet whose (MsgType, TranNbr)
	// matches what the caller is waiting for.
	OutcomeMatch
	// OutcomeHello is an unsolicited PakCtrl Hello (0x09). It has
	// already been answered inline with a 0x89 echoing the sender's
	// hop-metric byte; the caller should keep waiting for its own
	// reply.
	OutcomeHello
	// OutcomeDeliveryFailure is a PakCtrl 0x81 reply.
	OutcomeDeliveryFailure
	// OutcomeIgnore is anything else: stale or irrelevant traffic.
	OutcomeIgnore
)

// Classified is one received packet after header/signature
// validation and classification.
type Classified struct {
	Outcome  Outcome
	Header   Header
	Body     []byte
	SubCode  byte // valid when Outcome == OutcomeDeliveryFailure
}

// MessageLayer drives one PakBus link: header serialization,
// signature/nullifier framing (delegated to framer.Framer), the
// link-state handshake, and classification/Hello-interleave on
// receive. It owns the input/output byte buffers exclusively; BMP5
// and PakCtrl only ever see Classified values, never raw framer state.
type MessageLayer struct {
	fr   *framer.Framer
	log  zerolog.Logger
	self Address
	peer Address
}

// New builds a MessageLayer. self is always {LocalAddress,
// LocalAddress, 0}; peer is the configured logger address and
// security code from the PAKBUS config block.
func New(fr *framer.Framer, self, peer Address, log zerolog.Logger) *MessageLayer {
	return &MessageLayer{fr: fr, self: self, peer: peer, log: log}
}

// InitComm writes the twelve-byte 0xBD wake-up preamble, raw and
// unquoted, before the first handshake attempt.
func (m *MessageLayer) InitComm() error {
	preamble := make([]byte, 12)
	for i := range preamble {
		preamble[i] = framer.SyncByte
	}
	return m.fr.WriteRaw(preamble)
}

// NewHeader builds an application-packet header addressed to the
// configured peer, with ExpectMoreNo and the given protocol/message
// type/transaction number. Callers (PakCtrl, BMP5) build headers
// exclusively through this rather than filling in addressing by
// hand, so the local/peer address pair lives in one place.
func (m *MessageLayer) NewHeader(proto Protocol, msgType, tranNbr byte) Header {
	return Header{
		Link:       LinkFinished,
		DstPhys:    m.peer.PhysAddr,
		SrcPhys:    m.self.PhysAddr,
		ExpectMore: ExpectMoreNo,
		Proto:      proto,
		DstNode:    m.peer.NodeID,
		SrcNode:    m.self.NodeID,
		MsgType:    msgType,
		TranNbr:    tranNbr,
	}
}

// Send serializes header and body, appends the nullifier of their
// CSI signature, and frames the result for transmission.
func (m *MessageLayer) Send(h Header, body []byte) error {
	payload := append(EncodeHeader(h), body...)
	return m.fr.WritePakbus(framer.SignedPacket(payload))
}

// sendLinkState emits a bare link-state subpacket (4 or 8 bytes, no
// MsgType/TranNbr), signed like any other packet.
func (m *MessageLayer) sendLinkState(h Header, long bool) error {
	payload := linkStateBytes(h, long)
	return m.fr.WritePakbus(framer.SignedPacket(payload))
}

// ReadClassified pulls whatever packets are currently available from
// the framer, validates and classifies each, answers Ring and Hello
// packets inline, and returns the classified list (minus packets
// dropped for corrupt signatures, which are logged and skipped).
func (m *MessageLayer) ReadClassified(awaitMsgType, awaitTranNbr byte) ([]Classified, error) {
	pkts, err := m.fr.ReadPackets()
	if err != nil {
		return nil, err
	}

	var out []Classified
	for _, pkt := range pkts {
		if !pkt.Complete {
			continue
		}
		c, ok, err := m.classifyOne(pkt.Payload, awaitMsgType, awaitTranNbr)
		if err != nil {
			m.log.Warn().Err(err).Msg("dropping corrupt packet")
			continue
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MessageLayer) classifyOne(payload []byte, awaitMsgType, awaitTranNbr byte) (Classified, bool, error) {
	// 6 is the shortest valid packet: a 4-byte link-state subpacket
	// plus its 2-byte nullifier.
	if len(payload) < 6 || len(payload) > 1112 {
		return Classified{}, false, fmt.Errorf("packet length %d out of bounds", len(payload))
	}
	if sig := framer.CalcSig(payload, framer.SeedSig); sig != 0 {
		return Classified{}, false, perr.CorruptDataErr{}
	}

	body := payload[:len(payload)-2] // strip nullifier before header/body split

	// A link-state-only subpacket carries a 4- or 8-byte body with no
	// Proto/Node/MsgType/TranNbr; anything shorter than a full 10-byte
	// header is classified as link-state rather than as a malformed
	// application packet.
	if len(body) < 10 {
		padded := make([]byte, 10)
		copy(padded, body)
		h := DecodeHeader(padded)
		return m.classifyLinkState(h, len(body) > 4), true, nil
	}
	h := DecodeHeader(body[:10])

	if h.DstPhys != m.self.PhysAddr || h.SrcPhys != m.peer.PhysAddr {
		return Classified{}, false, fmt.Errorf("address mismatch dst=%#x src=%#x", h.DstPhys, h.SrcPhys)
	}
	if h.Proto != ProtoPakCtrl && h.Proto != ProtoBMP5 {
		return Classified{}, false, fmt.Errorf("unknown protocol %d", h.Proto)
	}

	appBody := body[10:]

	switch {
	case h.MsgType == awaitMsgType && h.TranNbr == awaitTranNbr:
		return Classified{Outcome: OutcomeMatch, Header: h, Body: appBody}, true, nil

	case h.Proto == ProtoPakCtrl && h.MsgType == 0x09:
		m.replyHello(h, appBody)
		return Classified{Outcome: OutcomeHello, Header: h, Body: appBody}, true, nil

	case h.Proto == ProtoPakCtrl && h.MsgType == 0x81:
		sub := byte(0)
		if len(appBody) > 0 {
			sub = appBody[0]
		}
		return Classified{Outcome: OutcomeDeliveryFailure, Header: h, Body: appBody, SubCode: sub}, true, nil

	default:
		return Classified{Outcome: OutcomeIgnore, Header: h, Body: appBody}, true, nil
	}
}

func (m *MessageLayer) classifyLinkState(h Header, long bool) Classified {
	if h.Link == LinkRing {
		reply := Header{
			Link:    LinkReady,
			DstPhys: h.SrcPhys,
			SrcPhys: m.self.PhysAddr,
			DstNode: h.SrcNode,
			SrcNode: m.self.NodeID,
		}
		if err := m.sendLinkState(reply, long); err != nil {
			m.log.Warn().Err(err).Msg("failed to answer Ring with Ready")
		}
	}
	return Classified{Outcome: OutcomeLinkState, Header: h}
}

// replyHello answers an unsolicited Hello inline with msg_type 0x89,
// echoing the sender's hop-metric byte (body offset 1), without
// perturbing any in-flight transaction header state — there is none
// to perturb, since Hello handling here is just another branch of
// the classifier rather than a snapshot/restore of shared state. The
// body is {source-is-not-router, hop metric, link verification
// interval hi, link verification interval lo}; the verification
// interval is hardcoded to 0x0060, distinct from the 0x003C a Hello
// request body carries.
func (m *MessageLayer) replyHello(h Header, body []byte) {
	hop := byte(0)
	if len(body) > 1 {
		hop = body[1]
	}
	reply := Header{
		Link:    LinkFinished,
		DstPhys: h.SrcPhys,
		SrcPhys: m.self.PhysAddr,
		DstNode: h.SrcNode,
		SrcNode: m.self.NodeID,
		Proto:   ProtoPakCtrl,
		MsgType: 0x89,
		TranNbr: h.TranNbr,
	}
	if err := m.Send(reply, []byte{0x00, hop, 0x00, 0x60}); err != nil {
		m.log.Warn().Err(err).Msg("failed to answer unsolicited Hello")
	}
}

// HandshakeMode selects which link-state handshake to run.
type HandshakeMode int

const (
	HandshakeRing HandshakeMode = iota
	HandshakeFinished
)

// Handshake drives the link-state sub-protocol. Ring succeeds when a
// Ready link-state packet is observed (replying Ready to any Ring
// received meanwhile, matching size); Finished succeeds on any
// returned link-state packet.
func (m *MessageLayer) Handshake(mode HandshakeMode) error {
	var link LinkState
	switch mode {
	case HandshakeRing:
		link = LinkRing
	case HandshakeFinished:
		link = LinkFinished
	}

	h := Header{Link: link, DstPhys: m.peer.PhysAddr, SrcPhys: m.self.PhysAddr}
	if err := m.sendLinkState(h, false); err != nil {
		return perr.IoErr{Cause: err}
	}

	classified, err := m.ReadClassified(0, 0)
	if err != nil {
		return err
	}
	for _, c := range classified {
		if c.Outcome != OutcomeLinkState {
			continue
		}
		switch mode {
		case HandshakeRing:
			if c.Header.Link == LinkReady {
				return nil
			}
		case HandshakeFinished:
			return nil
		}
	}

	return perr.HandshakeFailureErr{Reason: "no matching link-state reply"}
}
