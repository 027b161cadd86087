/*
Package cidr parses "network[/mask]" entries into the address bytes and mask
length the trie builder consumes.
*/
package cidr

import (
	"net/netip"
	"strings"

	"github.com/pkg/errors"

	rnet "github.com/ipmatch/ipset/net"
)

// ErrInvalidMask is returned when the mask is not a decimal number or is
// wider than the address family.
var ErrInvalidMask = errors.New("invalid mask")

// ErrInvalidAddress is returned when the network part is not an address of
// the family the entry was classified as.
var ErrInvalidAddress = errors.New("invalid address")

// Entry is a parsed CIDR entry.
type Entry struct {
	Text    string
	Address []byte
	Mask    int
	Version rnet.IPVersion
}

// Parse parses a "network[/mask]" entry. An entry containing ':' is IPv6,
// anything else is IPv4. A missing mask means a single address.
func Parse(s string) (Entry, error) {
	version := rnet.IPv4
	if strings.Contains(s, ":") {
		version = rnet.IPv6
	}
	bits := version.Bits()

	network, maskText, hasMask := strings.Cut(s, "/")
	mask := bits
	if hasMask {
		var ok bool
		if mask, ok = parseMask(maskText, bits); !ok {
			return Entry{}, errors.Wrapf(ErrInvalidMask, "%q", s)
		}
	}

	addr, ok := rnet.ParseAddress(network)
	if !ok || len(addr)*rnet.BitsPerByte != bits {
		return Entry{}, errors.Wrapf(ErrInvalidAddress, "%q", s)
	}
	return Entry{Text: s, Address: addr, Mask: mask, Version: version}, nil
}

// Prefix returns the entry as a masked netip.Prefix.
func (e Entry) Prefix() netip.Prefix {
	addr, _ := netip.AddrFromSlice(e.Address)
	return netip.PrefixFrom(addr, e.Mask).Masked()
}

func parseMask(s string, bits int) (int, bool) {
	if s == "" || len(s) > 3 {
		return 0, false
	}
	mask := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		mask = mask*10 + int(c-'0')
	}
	return mask, mask <= bits
}
