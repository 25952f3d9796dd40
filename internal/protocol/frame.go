package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire constants
const (
	// ChunkSize is the maximum payload carried by a single fragment
	ChunkSize = 450

	// CommandCode identifies the only message class of this protocol version
	CommandCode = 0x0410

	LengthSize  = 2
	AddressSize = 8
	CodeSize    = 2
	CRCSize     = 2

	// blockHeaderSize covers tag, transaction id, count, index and fragment length
	blockHeaderSize = 10

	// RequestHeaderSize is the offset of the payload in a request frame
	RequestHeaderSize = LengthSize + AddressSize + CodeSize + blockHeaderSize // 22

	// MinFrameSize is the smallest valid request frame (empty payload)
	MinFrameSize = RequestHeaderSize + CRCSize
)

// Command tags
const (
	CommandDiscover uint16 = 1
)

// BroadcastAddress is the destination address of every request
var BroadcastAddress = [AddressSize]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

var (
	// ErrFrameTooShort is returned when a buffer cannot hold a frame header and CRC
	ErrFrameTooShort = errors.New("frame too short")
	// ErrLengthMismatch is returned when a length field disagrees with the buffer
	ErrLengthMismatch = errors.New("frame length mismatch")
	// ErrChecksumMismatch is returned when the trailing CRC16 does not verify
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrBadCommandCode is returned for frames of another message class
	ErrBadCommandCode = errors.New("unexpected command code")
)

// Frame is a decoded request envelope
type Frame struct {
	TotalLength   uint16
	Address       [AddressSize]byte
	Code          uint16
	Tag           uint16
	TransactionID uint16
	Count         uint16
	Index         uint16
	Payload       []byte
	CRC           uint16
}

// EncodeFragments splits payload into ChunkSize pieces and frames each one.
// An empty payload still produces a single frame with a zero-length payload.
func EncodeFragments(payload []byte, tag, tid uint16) [][]byte {
	count := (len(payload) + ChunkSize - 1) / ChunkSize
	if count == 0 {
		return [][]byte{EncodeFrame(nil, tag, tid, 1, 0)}
	}

	frames := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * ChunkSize
		end := min(start+ChunkSize, len(payload))
		frames = append(frames, EncodeFrame(payload[start:end], tag, tid, uint16(count), uint16(i)))
	}
	return frames
}

// EncodeFrame builds one broadcast frame around chunk.
func EncodeFrame(chunk []byte, tag, tid, count, index uint16) []byte {
	return EncodeFrameTo(BroadcastAddress, chunk, tag, tid, count, index)
}

// EncodeFrameTo builds one frame with an explicit address field.
//
// The CRC covers address, command code and the tag..payload block; the
// leading total length is written last and excludes itself.
func EncodeFrameTo(address [AddressSize]byte, chunk []byte, tag, tid, count, index uint16) []byte {
	block := make([]byte, blockHeaderSize+len(chunk))
	binary.BigEndian.PutUint16(block[0:2], tag)
	binary.BigEndian.PutUint16(block[2:4], tid)
	binary.BigEndian.PutUint16(block[4:6], count)
	binary.BigEndian.PutUint16(block[6:8], index)
	binary.BigEndian.PutUint16(block[8:10], uint16(len(chunk)))
	copy(block[blockHeaderSize:], chunk)

	return seal(address, block)
}

// seal prepends address and command code to block, appends the CRC and
// prefixes the total length.
func seal(address [AddressSize]byte, block []byte) []byte {
	body := make([]byte, 0, AddressSize+CodeSize+len(block))
	body = append(body, address[:]...)
	body = binary.BigEndian.AppendUint16(body, CommandCode)
	body = append(body, block...)

	crc := CRC16Bytes(body, false)
	total := len(body) + len(crc)

	frame := make([]byte, 0, LengthSize+total)
	frame = binary.BigEndian.AppendUint16(frame, uint16(total))
	frame = append(frame, body...)
	frame = append(frame, crc...)
	return frame
}

// DecodeFrame parses and verifies a request frame.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < MinFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrFrameTooShort, len(data), MinFrameSize)
	}

	f := &Frame{
		TotalLength: binary.BigEndian.Uint16(data[0:2]),
	}
	if int(f.TotalLength) != len(data)-LengthSize {
		return nil, fmt.Errorf("%w: total length %d, have %d bytes", ErrLengthMismatch, f.TotalLength, len(data)-LengthSize)
	}

	crcOffset := len(data) - CRCSize
	f.CRC = binary.BigEndian.Uint16(data[crcOffset:])
	if want := CRC16(data[LengthSize:crcOffset]); want != f.CRC {
		return nil, fmt.Errorf("%w: got 0x%04x, want 0x%04x", ErrChecksumMismatch, f.CRC, want)
	}

	copy(f.Address[:], data[2:10])
	f.Code = binary.BigEndian.Uint16(data[10:12])
	if f.Code != CommandCode {
		return nil, fmt.Errorf("%w: 0x%04x", ErrBadCommandCode, f.Code)
	}
	f.Tag = binary.BigEndian.Uint16(data[12:14])
	f.TransactionID = binary.BigEndian.Uint16(data[14:16])
	f.Count = binary.BigEndian.Uint16(data[16:18])
	f.Index = binary.BigEndian.Uint16(data[18:20])

	fragLen := int(binary.BigEndian.Uint16(data[20:22]))
	if RequestHeaderSize+fragLen != crcOffset {
		return nil, fmt.Errorf("%w: fragment length %d, have %d bytes", ErrLengthMismatch, fragLen, crcOffset-RequestHeaderSize)
	}
	f.Payload = data[RequestHeaderSize:crcOffset]

	return f, nil
}

// IsBroadcast reports whether the frame is addressed to every gateway
func (f *Frame) IsBroadcast() bool {
	return f.Address == BroadcastAddress
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{tag=%d, tid=%d, fragment=%d/%d, len=%d, crc=0x%04x}",
		f.Tag, f.TransactionID, f.Index+1, f.Count, len(f.Payload), f.CRC)
}
