package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
)

// IPBlockList holds single addresses and CIDR ranges that are refused.
type IPBlockList struct {
	mu      sync.RWMutex
	blocked map[string]bool
	nets    []*net.IPNet
}

// NewIPBlockList accepts "10.0.0.1" and "10.0.0.0/8" style entries.
// Entries that parse as neither are logged and skipped.
func NewIPBlockList(entries []string) *IPBlockList {
	b := &IPBlockList{blocked: make(map[string]bool)}
	for _, e := range entries {
		b.Add(e)
	}
	return b
}

func (b *IPBlockList) Add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" || strings.HasPrefix(entry, "#") {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.Contains(entry, "/") {
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			slog.Warn("invalid blocked range", "entry", entry, "error", err)
			return
		}
		b.nets = append(b.nets, n)
		return
	}
	if net.ParseIP(entry) == nil {
		slog.Warn("invalid blocked ip", "entry", entry)
		return
	}
	b.blocked[entry] = true
}

func (b *IPBlockList) IsBlocked(ip string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.blocked[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range b.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func (b *IPBlockList) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blocked) + len(b.nets)
}

// IPBlocker refuses requests from blocked remote addresses with 403.
// RemoteAddr is used as is; put chi's RealIP in front when behind a proxy.
func IPBlocker(list *IPBlockList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if list.IsBlocked(ip) {
				slog.Warn("🚫 Request Blocked", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"access denied"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
