/*
Package ip provides utility functions for working with IPs (net.IP):
the first and last address of a network.
*/
package ip

import (
	"net"
)

// FirstIP returns the first address of the network ip/ones.
func FirstIP(ip net.IP, ones int) net.IP {
	return ip.Mask(net.CIDRMask(ones, len(ip)*8))
}

// LastIP returns the last address of the network ip/ones, i.e. the network
// address with every host bit set.
func LastIP(ip net.IP, ones int) net.IP {
	mask := net.CIDRMask(ones, len(ip)*8)
	last := make(net.IP, len(ip))
	for i := range ip {
		last[i] = ip[i] | ^mask[i]
	}
	return last
}
