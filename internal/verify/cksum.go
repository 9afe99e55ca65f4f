// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"encoding/binary"
	"hash"
	"strconv"
)

// crcPoly is the POSIX cksum polynomial, processed most significant bit first.
const crcPoly = 0x04C11DB7

var crcTable = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for range 8 {
			if c&0x80000000 != 0 {
				c = c<<1 ^ crcPoly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// cksum computes the checksum printed by POSIX cksum(1): a non-reflected
// CRC-32 over the data followed by its length in little-endian bytes,
// complemented.
type cksum struct {
	crc uint32
	n   uint64
}

var _ hash.Hash32 = (*cksum)(nil)

func newCksum() *cksum { return &cksum{} }

func (c *cksum) Write(p []byte) (int, error) {
	for _, b := range p {
		c.crc = c.crc<<8 ^ crcTable[byte(c.crc>>24)^b]
	}
	c.n += uint64(len(p))
	return len(p), nil
}

func (c *cksum) Sum32() uint32 {
	crc := c.crc
	for n := c.n; n != 0; n >>= 8 {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^byte(n)]
	}
	return ^crc
}

func (c *cksum) Sum(b []byte) []byte { return binary.BigEndian.AppendUint32(b, c.Sum32()) }

func (c *cksum) Reset() { *c = cksum{} }

func (c *cksum) Size() int { return 4 }

func (c *cksum) BlockSize() int { return 1 }

// String formats the checksum in decimal as cksum(1) does.
func (c *cksum) String() string { return strconv.FormatUint(uint64(c.Sum32()), 10) }
