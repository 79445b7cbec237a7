package charon

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
)

// ClientResolver decides which address a request is attributed to.
// X-Forwarded-For is only read when the direct peer is a trusted proxy.
type ClientResolver struct {
	trusted []netip.Prefix
}

// NewClientResolver accepts CIDRs or bare addresses of trusted proxies.
// With no proxies the peer address is always used.
func NewClientResolver(trustedProxies []string) (*ClientResolver, error) {
	c := &ClientResolver{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			c.trusted = append(c.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		c.trusted = append(c.trusted, prefix.Masked())
	}
	return c, nil
}

func (c *ClientResolver) isTrusted(ip string) bool {
	if c == nil || len(c.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address the request is attributed to. Forwarded hops
// are walked right to left and the first one outside the trusted set wins.
func (c *ClientResolver) ClientIP(r *http.Request) string {
	peer := peerIP(r)
	if !c.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			// Garbage in the chain: stop at the last address we can vouch for.
			break
		}
		client = hop
		if !c.isTrusted(hop) {
			break
		}
	}
	return client
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects requests over the per-client budget with 429.
// A nil resolver attributes requests to the connection peer. onLimited, when
// set, is called for every rejected request.
func RateLimitMiddleware(limiter RateLimiter, resolver *ClientResolver, onLimited func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := limiter.Allow(r.Context(), "ip:"+resolver.ClientIP(r))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			if onLimited != nil {
				onLimited(r)
			}
			w.Header().Set("Retry-After", retryAfter(err))
			httpErr := ToHTTPError(err)
			http.Error(w, httpErr.Message, httpErr.HTTPStatusCode())
		})
	}
}

// retryAfter renders the back-off in whole seconds, never less than one.
func retryAfter(err error) string {
	secs := 1
	var le *LimitError
	if errors.As(err, &le) {
		if s := int(math.Ceil(le.RetryAfter.Seconds())); s > secs {
			secs = s
		}
	}
	return strconv.Itoa(secs)
}
