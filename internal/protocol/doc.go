// Package protocol implements the lettin gateway command protocol.
//
// Every packet sent to or received from a lettin gateway is wrapped in the same
// length-framed, address-tagged, CRC16-protected envelope. Payloads larger
// than one chunk are split into numbered fragments that share a transaction id.
//
// # Frame Layout
//
// All multi-byte fields are big-endian:
//
//	[0-1]    total length      bytes following this field (address..CRC)
//	[2-9]    address           destination (requests) or gateway identity (responses)
//	[10-11]  command code      0x0410
//	[12-13]  command tag       application command (1 = discover)
//	[14-15]  transaction id    shared by every fragment of one request
//	[16-17]  fragment count    total fragments of the logical message
//	[18-19]  fragment index    0-based position of this fragment
//	[20-21]  fragment length   bytes of payload carried by this fragment
//	[22+N]   payload           up to ChunkSize bytes
//	[..]     CRC16             over address, command code and the block above
//
// Requests go to the all-0xFF broadcast address. Gateways answer with the same
// envelope, putting their own 8-byte identity in the address slot and a 2-byte
// status word before the length, which moves the JSON body to offset 24:
//
//	[2-9]    gateway identity
//	[20-21]  status
//	[22-23]  JSON length L
//	[24+L]   JSON body {"Obj":{"Name":...},"Mac":...}
//
// # Usage Example - Encoding
//
//	tid := protocol.NewTransactionID()
//	body, err := protocol.BuildDiscoverRequest(tid, protocol.DefaultToken)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, frame := range protocol.EncodeFragments(body, protocol.CommandDiscover, tid) {
//	    conn.WriteToUDP(frame, broadcast)
//	}
//
// # Usage Example - Decoding
//
//	resp, err := protocol.DecodeResponse(datagram)
//	if err != nil {
//	    // short or truncated datagram, drop it
//	}
//	fmt.Println(resp.MAC(), string(resp.Body))
//
// # Checksum
//
// CRC16 uses the reflected polynomial 0xA001 with an initial value of 0xFFFF
// and no final XOR (the MODBUS parameterisation).
//
// # Thread Safety
//
// Encoding and decoding functions are stateless and safe for concurrent use.
// Reassembler guards its state with a mutex.
package protocol
