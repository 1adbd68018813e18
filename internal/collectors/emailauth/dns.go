// -----------------------------------------------------------------------
// DNS access for the email-auth collector. Common record types go
// through the stdlib resolver; TLSA and DNSKEY need raw queries.
// -----------------------------------------------------------------------

package emailauth

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver is the DNS surface the collector depends on; tests substitute
// a canned implementation.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, name string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupTLSA(ctx context.Context, name string) ([]string, error)
	LookupDNSKEY(ctx context.Context, name string) (bool, error)
}

// systemResolver resolves against the host's configured nameserver
type systemResolver struct {
	stdlib  *net.Resolver
	client  *dns.Client
	server  string
	timeout time.Duration
}

// NewResolver builds the production resolver. The raw-query path reads
// the nameserver from resolv.conf, falling back to a public resolver.
func NewResolver(timeout time.Duration) Resolver {
	server := "8.8.8.8:53"
	if config, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(config.Servers) > 0 {
		server = net.JoinHostPort(config.Servers[0], config.Port)
	}
	return &systemResolver{
		stdlib:  &net.Resolver{},
		client:  &dns.Client{Timeout: timeout},
		server:  server,
		timeout: timeout,
	}
}

func (r *systemResolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *systemResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.stdlib.LookupTXT(ctx, name)
}

func (r *systemResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.stdlib.LookupMX(ctx, name)
}

func (r *systemResolver) LookupHost(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.stdlib.LookupHost(ctx, name)
}

func (r *systemResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.stdlib.LookupAddr(ctx, addr)
}

// LookupTLSA queries TLSA records, e.g. for "_25._tcp.mx.example.com"
func (r *systemResolver) LookupTLSA(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTLSA)

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("TLSA query failed: %w", err)
	}

	var records []string
	for _, answer := range resp.Answer {
		if tlsa, ok := answer.(*dns.TLSA); ok {
			records = append(records, fmt.Sprintf("%d %d %d %s",
				tlsa.Usage, tlsa.Selector, tlsa.MatchingType, tlsa.Certificate))
		}
	}
	return records, nil
}

// LookupDNSKEY reports whether the zone publishes DNSKEY records
func (r *systemResolver) LookupDNSKEY(ctx context.Context, name string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeDNSKEY)

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return false, fmt.Errorf("DNSKEY query failed: %w", err)
	}
	for _, answer := range resp.Answer {
		if _, ok := answer.(*dns.DNSKEY); ok {
			return true, nil
		}
	}
	return false, nil
}
