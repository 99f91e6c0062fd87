// Package discovery does best-effort DNS SRV resolution of a tomsg
// server ahead of dialing, the way spec.md describes "resolve the
// address (best-effort: first result)". SRV targets are tried in
// priority/weight order; callers fall back to treating the original
// address as a literal host:port when resolution fails or finds nothing.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"

	"github.com/miekg/dns"

	"github.com/lieuwex/tomsg-go/internal/mlog"
)

// Target is one SRV-resolved host:port candidate, in the order it should
// be tried.
type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))
}

// Resolver looks up SRV records for a tomsg service under domain.
// service is usually "tomsg" or "tomsgs" (TLS); the record queried is
// "_<service>._tcp.<domain>".
type Resolver struct {
	// Server is the DNS resolver to query, as "host:port". Empty means
	// "read /etc/resolv.conf", matching the host's default resolver.
	Server string
}

// Resolve returns SRV targets for service under domain, most-preferred
// first (lowest priority, then highest weight). It returns an empty
// slice, not an error, when the lookup succeeds but finds nothing --
// callers treat that the same as a lookup failure: fall back to the
// literal address.
func (r Resolver) Resolve(ctx context.Context, service, domain string) ([]Target, error) {
	server := r.Server
	if server == "" {
		cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("discovery: no resolver configured and /etc/resolv.conf unavailable: %w", err)
		}
		server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	}

	name := fmt.Sprintf("_%s._tcp.%s", service, dns.Fqdn(domain))

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeSRV)

	client := new(dns.Client)
	in, _, err := client.ExchangeContext(ctx, m, server)
	if err != nil {
		mlog.Debug("discovery: SRV lookup for %s failed: %v", name, err)
		return nil, err
	}

	var srvs []*dns.SRV
	for _, rr := range in.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			srvs = append(srvs, srv)
		}
	}

	sort.Slice(srvs, func(i, j int) bool {
		if srvs[i].Priority != srvs[j].Priority {
			return srvs[i].Priority < srvs[j].Priority
		}
		return srvs[i].Weight > srvs[j].Weight
	})

	targets := make([]Target, 0, len(srvs))
	for _, srv := range srvs {
		targets = append(targets, Target{
			Host: trimTrailingDot(srv.Target),
			Port: srv.Port,
		})
	}

	return targets, nil
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

// ResolveOrLiteral tries an SRV lookup for service under address (treated
// as a bare domain); on any failure or empty result it returns address
// itself as the sole target, unmodified. This is the "best-effort" dial
// address resolution spec.md's Connect describes.
func ResolveOrLiteral(ctx context.Context, r Resolver, service, address string) []string {
	targets, err := r.Resolve(ctx, service, address)
	if err != nil || len(targets) == 0 {
		return []string{address}
	}

	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.String())
	}
	return out
}
