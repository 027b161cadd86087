package ipset

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"testing"

	"github.com/gaissmai/bart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yl2chen/cidranger"

	"github.com/ipmatch/ipset/util/cidr"
)

/*
 ******************************************************************
 Test Matches against brute force set and third party tables.
 ******************************************************************
*/

func TestMatchesAgainstBaseIPv4(t *testing.T) {
	testMatchesAgainstBase(t, 20, 200, randIPv4CIDR, randIPv4Near)
}

func TestMatchesAgainstBaseIPv6(t *testing.T) {
	testMatchesAgainstBase(t, 20, 200, randIPv6CIDR, randIPv6Near)
}

func TestMatchesAgainstBaseMixed(t *testing.T) {
	mixed := func(r *rand.Rand) string {
		if r.Intn(2) == 0 {
			return randIPv4CIDR(r)
		}
		return randIPv6CIDR(r)
	}
	near := func(r *rand.Rand, entry string) string {
		if netip.MustParsePrefix(entry).Addr().Is4() {
			return randIPv4Near(r, entry)
		}
		return randIPv6Near(r, entry)
	}
	testMatchesAgainstBase(t, 20, 300, mixed, near)
}

func TestOrderIndependence(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		entries := randEntries(r, 40, randIPv4CIDR)
		entries = append(entries, randEntries(r, 40, randIPv6CIDR)...)
		queries := randQueries(r, entries, 500, func(r *rand.Rand, entry string) string {
			if netip.MustParsePrefix(entry).Addr().Is4() {
				return randIPv4Near(r, entry)
			}
			return randIPv6Near(r, entry)
		})

		reference := New(entries)
		for permutation := 0; permutation < 5; permutation++ {
			shuffled := append([]string(nil), entries...)
			r.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			set := New(shuffled)
			assert.Equal(t, reference.Len(), set.Len())
			for _, q := range queries {
				require.Equal(t, reference.Matches(q), set.Matches(q), "round %d, address %s", round, q)
			}
		}
	}
}

func TestAbsorptionNeverWidens(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		entry := randIPv4CIDR(r)
		set := New([]string{entry})
		prefix := netip.MustParsePrefix(entry).Masked()
		for i := 0; i < 200; i++ {
			q := netip.MustParseAddr(randIPv4Near(r, entry))
			require.Equal(t, prefix.Contains(q), set.MatchesAddr(q), "entry %s, address %s", entry, q)
		}
	}
}

func testMatchesAgainstBase(t *testing.T, rounds, entriesPerRound int, cidrGen cidrGenerator, nearGen nearGenerator) {
	r := rand.New(rand.NewSource(1))
	for round := 0; round < rounds; round++ {
		entries := randEntries(r, entriesPerRound, cidrGen)
		queries := randQueries(r, entries, 2000, nearGen)

		set := New(entries)
		base := newBruteSet(entries)
		ranger := newCIDRRanger(t, entries)
		table := newBartTable(entries)

		for _, q := range queries {
			addr := netip.MustParseAddr(q)
			expected := base.Matches(q)
			require.Equal(t, expected, set.Matches(q), "round %d, address %s", round, q)
			require.Equal(t, expected, set.MatchesAddr(addr))

			fromRanger, err := ranger.Contains(net.IP(addr.AsSlice()))
			require.NoError(t, err)
			require.Equal(t, fromRanger, expected, "cidranger disagrees on %s", q)
			_, inTable := table.Lookup(addr)
			require.Equal(t, inTable, expected, "bart disagrees on %s", q)
		}
	}
}

/*
 ******************************************************************
 Benchmarks.
 ******************************************************************
*/

func BenchmarkIPSetHitIPv4(b *testing.B) {
	benchmarkMatches(b, "10.64.1.1", New(benchmarkEntries()))
}

func BenchmarkBruteSetHitIPv4(b *testing.B) {
	benchmarkMatches(b, "10.64.1.1", newBruteSet(benchmarkEntries()))
}

func BenchmarkIPSetMissIPv4(b *testing.B) {
	benchmarkMatches(b, "123.123.123.123", New(benchmarkEntries()))
}

func BenchmarkBruteSetMissIPv4(b *testing.B) {
	benchmarkMatches(b, "123.123.123.123", newBruteSet(benchmarkEntries()))
}

func BenchmarkIPSetHitIPv6(b *testing.B) {
	benchmarkMatches(b, "2620:0:861:1::5", New(benchmarkEntries()))
}

func BenchmarkBruteSetHitIPv6(b *testing.B) {
	benchmarkMatches(b, "2620:0:861:1::5", newBruteSet(benchmarkEntries()))
}

func BenchmarkIPSetMissIPv6(b *testing.B) {
	benchmarkMatches(b, "2620::ffff", New(benchmarkEntries()))
}

func BenchmarkBruteSetMissIPv6(b *testing.B) {
	benchmarkMatches(b, "2620::ffff", newBruteSet(benchmarkEntries()))
}

func BenchmarkIPSetMatchesAddrIPv4(b *testing.B) {
	set := New(benchmarkEntries())
	addr := netip.MustParseAddr("10.64.1.1")
	b.ReportAllocs()
	for n := 0; n < b.N; n++ {
		set.MatchesAddr(addr)
	}
}

func BenchmarkNew(b *testing.B) {
	entries := benchmarkEntries()
	b.ReportAllocs()
	for n := 0; n < b.N; n++ {
		New(entries)
	}
}

func benchmarkMatches(b *testing.B, address string, m Matcher) {
	b.ReportAllocs()
	for n := 0; n < b.N; n++ {
		m.Matches(address)
	}
}

func benchmarkEntries() []string {
	r := rand.New(rand.NewSource(3))
	entries := []string{"208.80.154.0/26", "2620:0:861:1::/64", "10.64.0.0/22"}
	entries = append(entries, randEntries(r, 1000, randIPv4CIDR)...)
	return append(entries, randEntries(r, 1000, randIPv6CIDR)...)
}

/*
 ******************************************************************
 Helper methods.
 ******************************************************************
*/

type cidrGenerator func(r *rand.Rand) string

type nearGenerator func(r *rand.Rand, entry string) string

// IPv4 entries are drawn from a few first octets so that entries overlap,
// nest and share parents often.
func randIPv4CIDR(r *rand.Rand) string {
	firsts := []byte{10, 11, 172, 192}
	ip := netip.AddrFrom4([4]byte{firsts[r.Intn(len(firsts))], byte(r.Intn(4)), byte(r.Intn(256)), byte(r.Intn(256))})
	return fmt.Sprintf("%s/%d", ip, r.Intn(33))
}

func randIPv6CIDR(r *rand.Rand) string {
	firsts := []byte{0x20, 0x26, 0xfd}
	var b [16]byte
	b[0] = firsts[r.Intn(len(firsts))]
	b[1] = byte(r.Intn(2))
	for i := 2; i < 16; i++ {
		b[i] = byte(r.Intn(256))
	}
	return fmt.Sprintf("%s/%d", netip.AddrFrom16(b), r.Intn(129))
}

// randIPv4Near returns an address that shares a random number of leading
// bits with the entry's network, so that queries land on both sides of
// every boundary.
func randIPv4Near(r *rand.Rand, entry string) string {
	network := netip.MustParsePrefix(entry).Addr().As4()
	return netip.AddrFrom4(flipFrom(r, network[:], 32)).String()
}

func randIPv6Near(r *rand.Rand, entry string) string {
	network := netip.MustParsePrefix(entry).Addr().As16()
	addr := flipFrom16(r, network)
	if addr.Is4In6() {
		addr = netip.AddrFrom16(network)
	}
	return addr.String()
}

func flipFrom(r *rand.Rand, network []byte, bits int) [4]byte {
	var out [4]byte
	copy(out[:], network)
	randomizeFrom(r, out[:], r.Intn(bits+1))
	return out
}

func flipFrom16(r *rand.Rand, network [16]byte) netip.Addr {
	randomizeFrom(r, network[:], r.Intn(129))
	return netip.AddrFrom16(network)
}

// randomizeFrom replaces every bit of b from position keep on with a random
// bit.
func randomizeFrom(r *rand.Rand, b []byte, keep int) {
	for i := keep; i < len(b)*8; i++ {
		mask := byte(1) << (7 - uint(i&7))
		if r.Intn(2) == 0 {
			b[i>>3] &^= mask
		} else {
			b[i>>3] |= mask
		}
	}
}

func randEntries(r *rand.Rand, n int, gen cidrGenerator) []string {
	entries := make([]string, n)
	for i := range entries {
		entries[i] = gen(r)
	}
	return entries
}

func randQueries(r *rand.Rand, entries []string, n int, gen nearGenerator) []string {
	queries := make([]string, n)
	for i := range queries {
		queries[i] = gen(r, entries[r.Intn(len(entries))])
	}
	return queries
}

func newCIDRRanger(tb testing.TB, entries []string) cidranger.Ranger {
	ranger := cidranger.NewPCTrieRanger()
	for _, text := range entries {
		_, network, err := net.ParseCIDR(text)
		require.NoError(tb, err)
		require.NoError(tb, ranger.Insert(cidranger.NewBasicRangerEntry(*network)))
	}
	return ranger
}

func newBartTable(entries []string) *bart.Table[struct{}] {
	table := new(bart.Table[struct{}])
	for _, text := range entries {
		entry, err := cidr.Parse(text)
		if err != nil {
			continue
		}
		table.Insert(entry.Prefix(), struct{}{})
	}
	return table
}
