package registration

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vpsmonitor/vps-agent/internal/logger"
)

const (
	// FallbackAddress is reported when no strategy yields an address.
	FallbackAddress = "127.0.0.1"

	DefaultLookupTimeout = 10 * time.Second
	defaultDialTimeout   = 2 * time.Second
	defaultDNSTimeout    = 5 * time.Second
	defaultProbeTarget   = "8.8.8.8:80"
	maxLookupBody        = 256
)

// Resolver is one strategy for finding the address the collector should
// reach this host on. It reports false instead of failing.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context) (string, bool)
}

// ResolveAddress tries resolvers in order and returns the first address
// found, or FallbackAddress.
func ResolveAddress(ctx context.Context, resolvers ...Resolver) string {
	for _, r := range resolvers {
		if addr, ok := r.Resolve(ctx); ok {
			logger.Debug().Str("resolver", r.Name()).Str("address", addr).Msg("Resolved agent address")
			return addr
		}
		logger.Debug().Str("resolver", r.Name()).Msg("Address resolver failed, trying next")
	}

	return FallbackAddress
}

// DefaultResolvers returns the public lookup, outbound interface and host
// name strategies, in that order.
func DefaultResolvers(lookupURL string) []Resolver {
	resolvers := make([]Resolver, 0, 3)
	if lookupURL != "" {
		resolvers = append(resolvers, &ExternalLookup{URL: lookupURL})
	}

	return append(resolvers, &OutboundInterface{}, &HostLookup{})
}

// ExternalLookup asks a "what is my IP" service that answers with the bare
// address in the body.
type ExternalLookup struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

func (*ExternalLookup) Name() string { return "external" }

func (l *ExternalLookup) Resolve(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, orDefault(l.Timeout, DefaultLookupTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return "", false
	}

	hc := l.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return "", false
	}

	return parseIP(string(body))
}

// OutboundInterface reports the local address the kernel would route public
// traffic from. Dialing UDP sends no packets.
type OutboundInterface struct {
	Target  string
	Timeout time.Duration
}

func (*OutboundInterface) Name() string { return "outbound" }

func (o *OutboundInterface) Resolve(ctx context.Context) (string, bool) {
	target := o.Target
	if target == "" {
		target = defaultProbeTarget
	}

	dialer := net.Dialer{Timeout: orDefault(o.Timeout, defaultDialTimeout)}
	conn, err := dialer.DialContext(ctx, "udp", target)
	if err != nil {
		return "", false
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return "", false
	}

	return addr.IP.String(), true
}

// HostLookup resolves the machine's own host name.
type HostLookup struct {
	Hostname func() (string, error)
	Timeout  time.Duration
}

func (*HostLookup) Name() string { return "hostname" }

func (h *HostLookup) Resolve(ctx context.Context) (string, bool) {
	hostname := h.Hostname
	if hostname == nil {
		hostname = os.Hostname
	}

	name, err := hostname()
	if err != nil || name == "" {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, orDefault(h.Timeout, defaultDNSTimeout))
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, name)
	if err != nil || len(addrs) == 0 {
		return "", false
	}

	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, true
		}
	}

	return addrs[0], true
}

func parseIP(s string) (string, bool) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return "", false
	}

	return ip.String(), true
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}

	return d
}
