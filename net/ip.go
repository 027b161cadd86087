/*
Package net provides the address codec and bit helpers the matcher is built
on: text addresses become fixed-width big-endian byte slices (4 bytes for
IPv4, 16 for IPv6) and bits are read most significant first.
*/
package net

import (
	"net"
	"net/netip"
)

// IPVersion is version of IP address.
type IPVersion string

// Helper constants.
const (
	IPv4 IPVersion = "IPv4"
	IPv6 IPVersion = "IPv6"

	BitsPerByte = 8

	IPv4Bits = 32
	IPv6Bits = 128
)

// Bits returns the address width of the version.
func (v IPVersion) Bits() int {
	if v == IPv6 {
		return IPv6Bits
	}
	return IPv4Bits
}

// VersionOf returns the IP version for an address of length n bytes.
func VersionOf(n int) (IPVersion, bool) {
	switch n {
	case net.IPv4len:
		return IPv4, true
	case net.IPv6len:
		return IPv6, true
	}
	return "", false
}

// ParseAddress converts a textual address into its big-endian byte form.
// IPv4-mapped IPv6 text ("::ffff:1.2.3.4") stays 16 bytes wide. Addresses
// carrying a zone are rejected.
func ParseAddress(s string) ([]byte, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, false
	}
	return AddrBytes(addr)
}

// Matchable reports whether addr can be looked up: it is valid and carries
// no zone.
func Matchable(addr netip.Addr) bool {
	return addr.IsValid() && addr.Zone() == ""
}

// AddrBytes returns the byte form of a parsed address in a freshly
// allocated slice.
func AddrBytes(addr netip.Addr) ([]byte, bool) {
	if !Matchable(addr) {
		return nil, false
	}
	return addr.AsSlice(), true
}

// IPBytes returns the byte form of a net.IP. IPv4 addresses in their
// 16-byte form are shortened to 4 bytes, the same way net.IP.To4 does.
func IPBytes(ip net.IP) ([]byte, bool) {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, true
	}
	if len(ip) == net.IPv6len {
		return ip, true
	}
	return nil, false
}

// Bit returns the bit at position i of b, counting from the most
// significant bit of b[0].
func Bit(b []byte, i int) byte {
	return (b[i>>3] >> (7 - uint(i&7))) & 1
}

// ByteAt returns the byte holding bit position i.
func ByteAt(b []byte, i int) byte {
	return b[i>>3]
}
