// Package domain parses the list of domains to check.
package domain

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
)

const maxNameLen = 253

// NormalizeDomain lowercases s, drops a trailing dot or comment and checks
// label syntax.
func NormalizeDomain(s string) (string, bool) {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if !isDomainName(s) {
		return "", false
	}
	return s, true
}

func isDomainName(s string) bool {
	if s == "" || len(s) > maxNameLen {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if !isLabel(label) {
			return false
		}
	}
	return true
}

func isLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		ch := label[i]
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= '0' && ch <= '9':
		case ch == '-':
		default:
			return false
		}
	}
	return true
}

func splitTokens(r rune) bool {
	return r == ',' || r == ';' || r == ' ' || r == '\t'
}

// ParseDomains returns the valid domains in text in first-seen order. Entries
// may be separated by newlines, commas, semicolons or blanks; '#' starts a
// comment. Invalid tokens are skipped.
func ParseDomains(text string) []string {
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text)

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, token := range strings.FieldsFunc(line, splitTokens) {
			if d, ok := NormalizeDomain(token); ok {
				out = append(out, d)
			}
		}
	}
	return lo.Uniq(out)
}

func ReadDomainsFromFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domains: %w", err)
	}
	return ParseDomains(string(b)), nil
}
