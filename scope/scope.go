// Package scope decides whether a session's granted scopes satisfy a
// route's requirement.
//
// A scope token is either a bare permission ("reports") or a subsystem
// form "subsystem:perm[,perm...]" ("billing:read,write"). Matching is
// conjunctive across required tokens and case-sensitive: no normalization
// is applied. The subsystem name may be required with a "*" glob
// ("orders-*:read"); permission lists are never wildcarded, only satisfied
// exactly or through the "admin" override, which implies every permission
// of its subsystem.
package scope

import (
	"regexp"
	"strings"
)

// AdminPermission implies all permissions within a matched subsystem.
const AdminPermission = "admin"

// Authorize reports whether the granted tokens satisfy every required token.
// An empty requirement always passes; the first unsatisfied requirement
// fails the whole check.
func Authorize(required, granted []string) bool {
	for _, req := range required {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		if !satisfied(req, granted) {
			return false
		}
	}
	return true
}

func satisfied(required string, granted []string) bool {
	reqSubsystem, reqPerms, compound := splitToken(required)
	if !compound {
		// Bare tokens only match bare grants verbatim.
		for _, g := range granted {
			if !strings.Contains(g, ":") && strings.TrimSpace(g) == required {
				return true
			}
		}
		return false
	}

	for _, g := range granted {
		grantSubsystem, grantPerms, ok := splitToken(strings.TrimSpace(g))
		if !ok {
			continue
		}
		if !subsystemMatches(reqSubsystem, grantSubsystem) {
			continue
		}
		if hasPerm(grantPerms, AdminPermission) {
			return true
		}
		if isSubset(reqPerms, grantPerms) {
			return true
		}
	}
	return false
}

// subsystemMatches compares subsystem names exactly, or as an anchored glob
// when the requirement contains "*".
func subsystemMatches(required, granted string) bool {
	if !strings.Contains(required, "*") {
		return required == granted
	}
	parts := strings.Split(required, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	pattern := "^" + strings.Join(parts, ".*") + "$"
	matched, err := regexp.MatchString(pattern, granted)
	return err == nil && matched
}

// splitToken parses "subsystem:p1,p2" into its parts. The third result is
// false for bare tokens.
func splitToken(token string) (subsystem string, perms []string, ok bool) {
	idx := strings.Index(token, ":")
	if idx < 0 {
		return "", nil, false
	}
	subsystem = token[:idx]
	for _, p := range strings.Split(token[idx+1:], ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return subsystem, perms, true
}

func hasPerm(perms []string, want string) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}

func isSubset(required, granted []string) bool {
	for _, r := range required {
		if !hasPerm(granted, r) {
			return false
		}
	}
	return true
}

// ParseList splits the legacy comma-joined scope string into tokens.
// A comma segment without ":" that follows a subsystem token extends that
// token's permission list, so "billing:read,write,reports:read" parses as
// ["billing:read,write", "reports:read"]. Bare tokens therefore cannot
// directly follow a subsystem token in the joined form.
func ParseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var tokens []string
	for _, segment := range strings.Split(raw, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if len(tokens) > 0 && !strings.Contains(segment, ":") && strings.Contains(tokens[len(tokens)-1], ":") {
			tokens[len(tokens)-1] += "," + segment
			continue
		}
		tokens = append(tokens, segment)
	}
	return tokens
}

// JoinList renders tokens back into the comma-joined wire form.
func JoinList(tokens []string) string {
	return strings.Join(tokens, ",")
}
