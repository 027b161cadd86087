/*
	Example of guarding an HTTP handler with an ipset allow list

	The set is compiled once, the filter consults it on every request and
	falls back to the X-Forwarded-For header for requests from the load balancers
*/
package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ipmatch/ipset"
	"github.com/ipmatch/ipset/httpfilter"
)

// entry point
func main() {
	logrus.SetLevel(logrus.DebugLevel)

	// office networks, plus one typo that is skipped with a warning
	office := ipset.New([]string{"192.168.1.0/24", "2001:db8:1::/48", "128.168.1.0/33"})
	if len(office.Rejected()) > 0 {
		fmt.Println("Rejected:", office.Rejected())
	}

	// load balancers
	balancers := ipset.New([]string{"10.0.0.0/8"})

	fmt.Println("Contains 192.168.1.7:", office.Matches("192.168.1.7"))

	hello := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "hello")
	})
	filter := httpfilter.New(office, hello, httpfilter.TrustForwardedFor(balancers))

	requests := []struct {
		remoteAddr   string
		forwardedFor string
	}{
		{"192.168.1.42:51000", ""},
		{"[2001:db8:1::9]:51000", ""},
		{"203.0.113.5:51000", ""},
		{"10.1.2.3:443", "192.168.1.42"},
		{"10.1.2.3:443", "203.0.113.5"},
	}
	for _, r := range requests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = r.remoteAddr
		if r.forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", r.forwardedFor)
		}
		rec := httptest.NewRecorder()
		filter.ServeHTTP(rec, req)
		fmt.Printf("\t%s (forwarded for %q): %d\n", r.remoteAddr, r.forwardedFor, rec.Code)
	}

	if office.Matches("203.0.113.5") {
		os.Exit(1)
	}
}
