package framer

// Packet is a framed slice of the receive buffer: the unquoted
// payload starting right after a leading SyncByte and ending right
// before the matching trailing SyncByte.
//
// Packet holds an owned byte slice rather than a pointer into a
// shared buffer, so the packet queue below never aliases the ingress
// buffer.
type Packet struct {
	Payload  []byte
	Complete bool
}
