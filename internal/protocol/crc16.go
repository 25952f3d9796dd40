package protocol

import "encoding/binary"

const crc16Poly = 0xA001

// CRC16 computes the reflected CRC16 (poly 0xA001, init 0xFFFF) of data.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// CRC16Bytes returns the checksum of data serialized as two bytes,
// high byte first unless littleEndian is set.
func CRC16Bytes(data []byte, littleEndian bool) []byte {
	out := make([]byte, CRCSize)
	if littleEndian {
		binary.LittleEndian.PutUint16(out, CRC16(data))
	} else {
		binary.BigEndian.PutUint16(out, CRC16(data))
	}
	return out
}
