package frame

// crc16 computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no reflection,
// no final xor) over b. Both sender and receiver must agree on the exact
// variant; this one is picked for no reason other than being a conventional,
// widely implemented CRC-16.
func crc16(b []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, c := range b {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
