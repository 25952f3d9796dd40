package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Response layout offsets. Gateways reply with the request envelope plus a
// 2-byte status word, so the JSON length sits at 22 and the body at 24.
const (
	identityOffset = 2
	statusOffset   = 20
	bodyLenOffset  = 22

	// ResponseHeaderSize is the offset of the JSON body in a response datagram
	ResponseHeaderSize = 24
)

var (
	// ErrShortDatagram is returned for datagrams that cannot hold a response header
	ErrShortDatagram = errors.New("datagram too short")
	// ErrBodyOverflow is returned when the declared JSON length exceeds the datagram
	ErrBodyOverflow = errors.New("declared body length exceeds datagram")
)

// Response is the part of a gateway reply the discovery flow relies on
type Response struct {
	Identity [AddressSize]byte
	Body     []byte // UTF-8 JSON
	Raw      []byte
}

// GatewayBody is the JSON document carried by a discovery response
type GatewayBody struct {
	Obj *GatewayObj `json:"Obj,omitempty"`
	Mac string      `json:"Mac,omitempty"`
	Tid *int        `json:"Tid,omitempty"`
}

// GatewayObj holds the gateway's descriptive fields
type GatewayObj struct {
	Name string `json:"Name"`
}

// DecodeResponse extracts the gateway identity and JSON body from a datagram.
// It never indexes past the end of data.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) < ResponseHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrShortDatagram, len(data), ResponseHeaderSize)
	}

	bodyLen := int(binary.BigEndian.Uint16(data[bodyLenOffset:ResponseHeaderSize]))
	if ResponseHeaderSize+bodyLen > len(data) {
		return nil, fmt.Errorf("%w: length %d, %d bytes available",
			ErrBodyOverflow, bodyLen, len(data)-ResponseHeaderSize)
	}

	resp := &Response{
		Body: make([]byte, bodyLen),
		Raw:  data,
	}
	copy(resp.Identity[:], data[identityOffset:identityOffset+AddressSize])
	copy(resp.Body, data[ResponseHeaderSize:ResponseHeaderSize+bodyLen])

	return resp, nil
}

// MAC returns the identity as 16 lowercase hex characters
func (r *Response) MAC() string {
	return hex.EncodeToString(r.Identity[:])
}

// ParseBody decodes the JSON body. A body that does not match the expected
// shape returns an error together with a zero GatewayBody.
func (r *Response) ParseBody() (*GatewayBody, error) {
	var body GatewayBody
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return &GatewayBody{}, fmt.Errorf("failed to parse gateway body: %w", err)
	}
	return &body, nil
}

// Name returns Obj.Name or an empty string
func (b *GatewayBody) Name() string {
	if b == nil || b.Obj == nil {
		return ""
	}
	return b.Obj.Name
}

// EncodeResponse builds a single-fragment gateway reply carrying body.
// identity goes in the address slot where DecodeResponse reads it.
func EncodeResponse(identity [AddressSize]byte, tag, tid, status uint16, body []byte) []byte {
	block := make([]byte, 12+len(body))
	binary.BigEndian.PutUint16(block[0:2], tag)
	binary.BigEndian.PutUint16(block[2:4], tid)
	binary.BigEndian.PutUint16(block[4:6], 1)
	binary.BigEndian.PutUint16(block[6:8], 0)
	binary.BigEndian.PutUint16(block[8:10], status)
	binary.BigEndian.PutUint16(block[10:12], uint16(len(body)))
	copy(block[12:], body)

	return seal(identity, block)
}

// ParseIdentity converts 16 hex characters (separators ':' or '-' allowed)
// into an 8-byte identity.
func ParseIdentity(s string) ([AddressSize]byte, error) {
	var id [AddressSize]byte

	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ':' || s[i] == '-' {
			continue
		}
		clean = append(clean, s[i])
	}

	if len(clean) != AddressSize*2 {
		return id, fmt.Errorf("identity must be %d hex characters, got %d", AddressSize*2, len(clean))
	}
	if _, err := hex.Decode(id[:], clean); err != nil {
		return id, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	return id, nil
}
