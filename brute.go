package ipset

import (
	"net/netip"

	rnet "github.com/ipmatch/ipset/net"
	"github.com/ipmatch/ipset/util/cidr"
)

// bruteSet is a brute force implementation of Matcher. Membership tests
// scan every recorded network linearly, so one can assume a worst case
// performance of O(N). Its correctness is easy to see, which makes it the
// ground truth when running randomized tests against IPSet.
type bruteSet struct {
	ipV4Networks []netip.Prefix
	ipV6Networks []netip.Prefix
}

// type check
var _ Matcher = (*bruteSet)(nil)

// newBruteSet returns a new Matcher holding the valid entries of cidrs.
func newBruteSet(cidrs []string) *bruteSet {
	b := &bruteSet{}
	for _, text := range cidrs {
		entry, err := cidr.Parse(text)
		if err != nil {
			continue
		}
		if entry.Version == rnet.IPv6 {
			b.ipV6Networks = append(b.ipV6Networks, entry.Prefix())
		} else {
			b.ipV4Networks = append(b.ipV4Networks, entry.Prefix())
		}
	}
	return b
}

// Matches returns bool indicating whether given address is contained by any
// network in the set.
func (b *bruteSet) Matches(address string) bool {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	return b.MatchesAddr(addr)
}

// MatchesAddr is Matches for a parsed address.
func (b *bruteSet) MatchesAddr(addr netip.Addr) bool {
	for _, network := range b.networksByVersion(addr) {
		if network.Contains(addr) {
			return true
		}
	}
	return false
}

func (b *bruteSet) networksByVersion(addr netip.Addr) []netip.Prefix {
	if addr.Is4() {
		return b.ipV4Networks
	}
	return b.ipV6Networks
}
