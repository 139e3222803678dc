package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// ErrForbiddenHost indicates a remote reference points at a host the relay
// must not contact.
var ErrForbiddenHost = errors.New("catalog host not allowed")

// hostPolicy decides which remote hosts may be fetched. An explicit allowlist
// is trusted as written; without one, only public addresses are reachable.
type hostPolicy struct {
	allowed map[string]bool
}

func newHostPolicy(hosts []string) hostPolicy {
	p := hostPolicy{}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if p.allowed == nil {
			p.allowed = map[string]bool{}
		}
		p.allowed[h] = true
	}
	return p
}

// check vets u before any connection is made. Host names are resolved so a
// name pointing at a private address is refused too.
func (p hostPolicy) check(ctx context.Context, u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	if p.allowed != nil {
		if !p.allowed[host] {
			return fmt.Errorf("%s: %w", host, ErrForbiddenHost)
		}
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return checkAddr(ip)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		if err := checkAddr(a.IP); err != nil {
			return fmt.Errorf("%s: %w", host, err)
		}
	}
	return nil
}

func checkAddr(ip net.IP) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%s: %w", ip, ErrForbiddenHost)
	}
	return nil
}

// newGuardedClient returns the default fetch client. Without an allowlist the
// dialer re-checks every resolved address, which also covers redirects and
// names that change between lookup and connect.
func (p hostPolicy) newGuardedClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if p.allowed == nil {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return fmt.Errorf("%s: %w", host, ErrForbiddenHost)
			}
			return checkAddr(ip)
		}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			if p.allowed != nil && !p.allowed[strings.ToLower(req.URL.Hostname())] {
				return fmt.Errorf("redirect to %s: %w", req.URL.Hostname(), ErrForbiddenHost)
			}
			return nil
		},
	}
}
