package tenant

import (
	"net/http"
	"regexp"
	"strings"
)

// Inbound headers accepted for tenant resolution. They are never echoed
// back; downstream code reads the resolved context instead.
const (
	HeaderTenantID     = "X-Tenant-Id"
	HeaderTenantDomain = "X-Tenant-Domain"
)

// subdomainPattern is the only shape accepted as a tenant subdomain.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// reservedSubdomains never resolve to a tenant.
var reservedSubdomains = map[string]bool{
	"www":   true,
	"api":   true,
	"app":   true,
	"admin": true,
}

// Candidates holds every raw tenant hint found on one request, before
// normalization. Claim and HeaderID are canonical ids; Subdomain and
// HeaderDomain still need a Provider lookup.
type Candidates struct {
	Claim        string
	Subdomain    string
	HeaderID     string
	HeaderDomain string
}

// Source names recorded on resolution for logs and audit.
const (
	SourceClaim     = "claim"
	SourceSubdomain = "subdomain"
	SourceHeaderID  = "header_id"
	SourceDomain    = "header_domain"
	SourceDefault   = "default"
)

// CollectCandidates gathers the tenant hints from the principal's claim,
// the host subdomain and the tenant headers. It performs no lookups; the
// middleware normalizes domains to ids and applies the priority chain.
func CollectCandidates(r *http.Request, principal *Principal) Candidates {
	c := Candidates{
		Subdomain:    SubdomainFromHost(r.Host),
		HeaderID:     r.Header.Get(HeaderTenantID),
		HeaderDomain: r.Header.Get(HeaderTenantDomain),
	}
	if principal != nil {
		c.Claim = principal.TenantID
	}
	return c
}

// SubdomainFromHost extracts a candidate tenant subdomain from a request
// host. It strips the port, ignores localhost, requires at least
// subdomain.domain.tld, and rejects reserved and malformed labels.
func SubdomainFromHost(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	if host == "localhost" || host == "" {
		return ""
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	sub := parts[0]
	if reservedSubdomains[sub] || !subdomainPattern.MatchString(sub) {
		return ""
	}
	return sub
}
