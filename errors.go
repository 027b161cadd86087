package ipset

import (
	"github.com/ipmatch/ipset/util/cidr"
)

// ErrInvalidMask is wrapped by entries whose mask is not a decimal number or
// is wider than the address family (32 for IPv4, 128 for IPv6).
var ErrInvalidMask = cidr.ErrInvalidMask

// ErrInvalidAddress is wrapped by entries whose network part is not a valid
// address.
var ErrInvalidAddress = cidr.ErrInvalidAddress
