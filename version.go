package ipset

import (
	rnet "github.com/ipmatch/ipset/net"
)

// rootFor returns the trie root holding networks of the given version.
func (s *IPSet) rootFor(version rnet.IPVersion) nodeID {
	if version == rnet.IPv6 {
		return s.root6
	}
	return s.root4
}

// rootForLen picks the trie by address length: 4 bytes for IPv4, 16 for
// IPv6. An address of the other family simply walks the other trie.
func (s *IPSet) rootForLen(n int) (nodeID, bool) {
	version, ok := rnet.VersionOf(n)
	if !ok {
		return 0, false
	}
	return s.rootFor(version), true
}
