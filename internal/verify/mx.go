package verify

import (
	"context"
	"errors"
	"net"
	"sort"
)

// MXResolver resolves the mail exchanger hosts for a domain, ordered by
// preference.
type MXResolver interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
}

// dnsResolver is the production MXResolver over the system resolver.
type dnsResolver struct {
	resolver *net.Resolver
}

// NewDNSResolver returns an MXResolver backed by the system DNS resolver.
func NewDNSResolver() MXResolver {
	return &dnsResolver{resolver: net.DefaultResolver}
}

func (r *dnsResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	records, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})

	hosts := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Host != "" && rec.Host != "." {
			hosts = append(hosts, rec.Host)
		}
	}
	return hosts, nil
}

// isDNSTimeout reports whether an MX lookup failure was a timeout rather
// than an authoritative no-records answer.
func isDNSTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
