/*
Package httpfilter admits or rejects HTTP requests by client address using an
ipset.Matcher, as an allow list or a deny list.
*/
package httpfilter

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/ipmatch/ipset"
	rnet "github.com/ipmatch/ipset/net"
)

// Mode selects how set membership maps to a decision.
type Mode int

const (
	// Allow admits only clients inside the set.
	Allow Mode = iota
	// Deny rejects clients inside the set.
	Deny
)

func (m Mode) String() string {
	if m == Deny {
		return "deny"
	}
	return "allow"
}

// Decision label values.
const (
	decisionAllowed = "allowed"
	decisionDenied  = "denied"
	decisionInvalid = "invalid"
)

var log = logrus.WithField("component", "httpfilter")

type options struct {
	mode    Mode
	trusted ipset.Matcher
	reg     prometheus.Registerer
	log     logrus.FieldLogger
}

// Option configures a Filter.
type Option func(*options)

// WithMode sets the filter mode. The default is Allow.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// TrustForwardedFor makes the filter read the client address from
// X-Forwarded-For when the connection comes from a member of trusted.
func TrustForwardedFor(trusted ipset.Matcher) Option {
	return func(o *options) {
		o.trusted = trusted
	}
}

// WithRegisterer registers the decision counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.reg = reg
	}
}

// WithLogger sets the logger rejected requests are reported to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Filter is an http.Handler that passes admitted requests to the next
// handler and answers the others with 403 Forbidden.
type Filter struct {
	set     ipset.Matcher
	next    http.Handler
	mode    Mode
	trusted ipset.Matcher
	log     logrus.FieldLogger

	decisions *prometheus.CounterVec
}

// New returns a Filter guarding next with set.
func New(set ipset.Matcher, next http.Handler, opts ...Option) *Filter {
	o := options{log: log}
	for _, opt := range opts {
		opt(&o)
	}
	return &Filter{
		set:     set,
		next:    next,
		mode:    o.mode,
		trusted: o.trusted,
		log:     o.log.WithField("mode", o.mode.String()),
		decisions: promauto.With(o.reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ipset_filter_decisions_total",
			Help: "Number of requests admitted or rejected by client address.",
		}, []string{"decision"}),
	}
}

func (f *Filter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := f.clientAddress(r)
	addr, err := netip.ParseAddr(client)
	if err != nil || !rnet.Matchable(addr) {
		f.reject(w, client, decisionInvalid)
		return
	}

	member := f.set.MatchesAddr(addr)
	if member == (f.mode == Deny) {
		f.reject(w, client, decisionDenied)
		return
	}
	f.decisions.WithLabelValues(decisionAllowed).Inc()
	f.next.ServeHTTP(w, r)
}

func (f *Filter) reject(w http.ResponseWriter, client, decision string) {
	f.decisions.WithLabelValues(decision).Inc()
	f.log.WithFields(logrus.Fields{"client": client, "decision": decision}).Debug("rejecting request")
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// clientAddress returns the peer address of r. When the peer is a trusted
// proxy, X-Forwarded-For is walked from the right and the first hop that is
// not a trusted proxy is returned.
func (f *Filter) clientAddress(r *http.Request) string {
	client, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		client = r.RemoteAddr
	}
	if f.trusted == nil || !f.trusted.Matches(client) {
		return client
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !f.trusted.Matches(hop) {
			break
		}
	}
	return client
}
