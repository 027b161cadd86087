/*
Package ipset provides an immutable set of IPv4 and IPv6 CIDR blocks with
fast, allocation-free membership tests, for allow/deny lists and similar
trust decisions made on every request.

To build a set from configuration:

	set := ipset.New([]string{"208.80.154.0/26", "2620:0:861:1::/64", "10.64.0.0/22"})

Entries that cannot be parsed are skipped and logged; construction never
fails. The skipped entries are available afterwards:

	for _, err := range set.Rejected() {
		if errors.Is(err, ipset.ErrInvalidMask) { ... }
	}

To test whether an address belongs to the set:

	set.Matches("208.80.154.1")   // true
	set.Matches("not-an-ip")      // false, unparseable addresses never match

Each address family is compiled into its own binary trie. Runs of a single
path that start on a byte boundary are stored as one compressed node per
byte, narrower networks under a broader one are dropped, and sibling
networks that together cover their parent are folded into the parent. A
built set is never modified, so it can be shared by any number of
goroutines without locking.
*/
package ipset

import (
	"net"
	"net/netip"

	"github.com/sirupsen/logrus"

	rnet "github.com/ipmatch/ipset/net"
	"github.com/ipmatch/ipset/util/cidr"
)

var log = logrus.WithField("component", "ipset")

// Matcher is an interface for address membership tests.
type Matcher interface {
	Matches(address string) bool
	MatchesAddr(addr netip.Addr) bool
}

// IPSet is a compiled, immutable set of CIDR blocks.
type IPSet struct {
	nodes []node
	root4 nodeID
	root6 nodeID

	size     int
	rejected []error
}

// type check
var _ Matcher = (*IPSet)(nil)

type options struct {
	log logrus.FieldLogger
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger skipped entries are reported to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// New compiles cidrs into a set. Entries are "network/mask" or a bare
// address. Malformed entries are skipped with a warning and can be
// inspected with Rejected.
func New(cidrs []string, opts ...Option) *IPSet {
	o := options{log: log}
	for _, opt := range opts {
		opt(&o)
	}

	b := newBuilder()
	root4 := b.alloc(leaf(false))
	root6 := b.alloc(leaf(false))

	s := &IPSet{}
	for _, text := range cidrs {
		entry, err := cidr.Parse(text)
		if err != nil {
			o.log.WithField("entry", text).WithError(err).Warn("skipping CIDR entry")
			s.rejected = append(s.rejected, err)
			continue
		}
		root := root4
		if entry.Version == rnet.IPv6 {
			root = root6
		}
		b.insert(root, entry.Address, entry.Mask)
		s.size++
	}

	var roots []nodeID
	s.nodes, roots = compact(b.nodes, root4, root6)
	s.root4, s.root6 = roots[0], roots[1]

	o.log.WithFields(logrus.Fields{
		"entries":  s.size,
		"rejected": len(s.rejected),
		"nodes":    len(s.nodes),
		"freed":    len(b.nodes) - len(s.nodes),
	}).Debug("compiled CIDR set")
	return s
}

// Matches returns true if address is inside any network of the set. An
// address that cannot be parsed never matches.
func (s *IPSet) Matches(address string) bool {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	return s.MatchesAddr(addr)
}

// MatchesAddr is Matches for an already parsed address. IPv4-mapped IPv6
// addresses are looked up in the IPv6 trie.
func (s *IPSet) MatchesAddr(addr netip.Addr) bool {
	if !rnet.Matchable(addr) {
		return false
	}
	if addr.Is4() {
		b := addr.As4()
		return walk(s.nodes, s.rootFor(rnet.IPv4), b[:])
	}
	b := addr.As16()
	return walk(s.nodes, s.rootFor(rnet.IPv6), b[:])
}

// MatchesIP is Matches for a net.IP. A net.IP cannot tell IPv4 from
// IPv4-mapped IPv6, so both are looked up in the IPv4 trie.
func (s *IPSet) MatchesIP(ip net.IP) bool {
	b, ok := rnet.IPBytes(ip)
	if !ok {
		return false
	}
	return s.matchBytes(b)
}

func (s *IPSet) matchBytes(addr []byte) bool {
	root, ok := s.rootForLen(len(addr))
	if !ok {
		return false
	}
	return walk(s.nodes, root, addr)
}

// Len returns the number of entries accepted at construction, including
// entries absorbed by broader ones.
func (s *IPSet) Len() int {
	return s.size
}

// NodeCount returns the number of trie nodes backing the set.
func (s *IPSet) NodeCount() int {
	return len(s.nodes)
}

// Rejected returns the errors for entries skipped at construction, in input
// order. Each one wraps ErrInvalidMask or ErrInvalidAddress.
func (s *IPSet) Rejected() []error {
	return s.rejected
}

// String returns string representation of both tries, mainly for
// visualization and debugging.
func (s *IPSet) String() string {
	return "IPv4: " + render(s.nodes, s.root4, 0) + "\nIPv6: " + render(s.nodes, s.root6, 0)
}
