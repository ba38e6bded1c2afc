// Package policy holds the process-wide admin allowlist.
package policy

import "strings"

// AuthorizationPolicy answers whether an account has admin rights. It is
// built once at startup and shared by middleware and services.
type AuthorizationPolicy struct {
	admins map[string]struct{}
}

func New(adminEmails []string) *AuthorizationPolicy {
	p := &AuthorizationPolicy{admins: make(map[string]struct{}, len(adminEmails))}
	for _, e := range adminEmails {
		if e = normalize(e); e != "" {
			p.admins[e] = struct{}{}
		}
	}
	return p
}

// IsAdmin matches case-insensitively. A nil policy has no admins.
func (p *AuthorizationPolicy) IsAdmin(email string) bool {
	if p == nil {
		return false
	}
	_, ok := p.admins[normalize(email)]
	return ok
}

// AdminEmails returns the allowlist, used as flag notification recipients.
func (p *AuthorizationPolicy) AdminEmails() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.admins))
	for e := range p.admins {
		out = append(out, e)
	}
	return out
}

// Role is the role string reported to clients.
func (p *AuthorizationPolicy) Role(email string) string {
	if p.IsAdmin(email) {
		return "admin"
	}
	return "user"
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
