// Package dns resolves relay hostnames, falling back to public resolvers
// when the system resolver is broken (captive portals, misconfigured VPNs).
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var publicResolvers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

const (
	systemTimeout = 1 * time.Second
	raceTimeout   = 2 * time.Second
)

var errNoAddresses = errors.New("no addresses found")

// Lookup resolves host to a single IP address, preferring IPv4. IP literals
// are returned unchanged. The system resolver is tried first; if it fails,
// the public resolvers are raced and the first answer wins.
func Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	sysCtx, cancel := context.WithTimeout(ctx, systemTimeout)
	ip, err := lookupWith(sysCtx, net.DefaultResolver, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return race(ctx, host)
}

func race(ctx context.Context, host string) (string, error) {
	type answer struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, raceTimeout)
	defer cancel()

	answers := make(chan answer, len(publicResolvers))
	for _, server := range publicResolvers {
		go func(server string) {
			ip, err := lookupWith(ctx, resolverFor(server), host)
			answers <- answer{ip: ip, err: err}
		}(server)
	}

	for range publicResolvers {
		select {
		case a := <-answers:
			if a.err == nil {
				return a.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public resolvers timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public resolvers failed", host, len(publicResolvers))
}

// resolverFor returns a pure-Go resolver pinned to server on port 53.
func resolverFor(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
}

func lookupWith(ctx context.Context, r *net.Resolver, host string) (string, error) {
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errNoAddresses
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}
