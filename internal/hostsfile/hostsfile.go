package hostsfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/938134/check-hosts/internal/model"
)

const (
	beginMarker = "# check-hosts begin"
	endMarker   = "# check-hosts end"

	ipv4Width = 27
	ipv6Width = 50

	generatedPrefix = "# Generated at: "
)

// GeneratedZone is the zone of the "Generated at" stamp.
var GeneratedZone = time.FixedZone("UTC+8", 8*60*60)

// Entry is one hosts line mapping Domain to IP.
type Entry struct {
	IP     string
	Domain string
}

func DefaultHostsPath() string {
	switch runtime.GOOS {
	case "windows":
		winDir := os.Getenv("WINDIR")
		if winDir == "" {
			winDir = `C:\Windows`
		}
		return filepath.Join(winDir, "System32", "drivers", "etc", "hosts")
	default:
		return "/etc/hosts"
	}
}

// EntriesFromResults returns the winners of family f in result order. Domains
// without a winner are left out.
func EntriesFromResults(results []model.DomainResult, f model.Family) []Entry {
	return lo.FilterMap(results, func(r model.DomainResult, _ int) (Entry, bool) {
		out := r.Outcome(f)
		if !out.Found {
			return Entry{}, false
		}
		return Entry{IP: string(out.Winner), Domain: r.Domain}, true
	})
}

// Render produces the generated hosts file.
func Render(ipv4, ipv6 []Entry, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("# IPv4 Hosts\n")
	b.WriteString(renderBlock(ipv4, ipv4Width, "# No IPv4 entries"))
	b.WriteString("\n\n# IPv6 Hosts\n")
	b.WriteString(renderBlock(ipv6, ipv6Width, "# No IPv6 entries"))
	b.WriteString("\n\n")
	b.WriteString(generatedPrefix)
	b.WriteString(generatedAt.In(GeneratedZone).Truncate(time.Second).Format(time.RFC3339))
	b.WriteString("\n")
	return b.String()
}

func renderBlock(entries []Entry, width int, empty string) string {
	lines := formatEntries(entries, width)
	if len(lines) == 0 {
		return empty
	}
	return strings.Join(lines, "\n")
}

// formatEntries renders entries as "ip domain" lines with the IP padded to
// width. Entries missing either field are skipped.
func formatEntries(entries []Entry, width int) []string {
	return lo.FilterMap(entries, func(e Entry, _ int) (string, bool) {
		ip, d := strings.TrimSpace(e.IP), strings.TrimSpace(e.Domain)
		if ip == "" || d == "" {
			return "", false
		}
		return fmt.Sprintf("%-*s %s", width, ip, d), true
	})
}

func WriteFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// WriteIfChanged writes content to path unless the file already holds the
// same text up to the "Generated at" stamp. It reports whether it wrote.
func WriteIfChanged(path, content string) (bool, error) {
	if old, err := os.ReadFile(path); err == nil {
		if withoutStamp(normalizeNewlines(string(old))) == withoutStamp(content) {
			return false, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, WriteFile(path, content)
}

func withoutStamp(s string) string {
	if i := strings.Index(s, generatedPrefix); i >= 0 {
		return s[:i]
	}
	return s
}

func BuildManagedBlock(entries []Entry) string {
	var b strings.Builder
	b.WriteString(beginMarker)
	b.WriteString("\n")
	for _, line := range formatEntries(entries, 0) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(endMarker)
	b.WriteString("\n")
	return b.String()
}

// ApplyManagedBlock replaces any previous managed block in existing with block,
// appended at the end. Lines outside the markers are kept as is.
func ApplyManagedBlock(existing string, block string) string {
	existing = normalizeNewlines(existing)

	var out []string
	inManaged := false
	for _, line := range strings.Split(existing, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inManaged && trimmed == beginMarker:
			inManaged = true
		case inManaged:
			if trimmed == endMarker {
				inManaged = false
			}
		default:
			out = append(out, line)
		}
	}

	next := strings.TrimRight(strings.Join(out, "\n"), "\n")
	if next != "" {
		next += "\n"
	}
	return next + normalizeNewlines(block)
}

// WriteWithBackup rewrites the managed block of the hosts file at path after
// saving a timestamped copy next to it.
func WriteWithBackup(path string, entries []Entry) (backupPath string, newContent string, err error) {
	orig, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	newContent = ApplyManagedBlock(string(orig), BuildManagedBlock(entries))

	backupPath, err = backupFile(path, orig)
	if err != nil {
		return "", "", fmt.Errorf("backup hosts: %w", err)
	}
	if err := os.WriteFile(path, []byte(newContent), fileMode(path)); err != nil {
		return "", "", err
	}
	return backupPath, newContent, nil
}

func RestoreBackup(backupPath, hostsPath string) error {
	if strings.TrimSpace(backupPath) == "" {
		return errors.New("empty backup path")
	}
	b, err := os.ReadFile(backupPath)
	if err != nil {
		return err
	}
	return os.WriteFile(hostsPath, b, fileMode(hostsPath))
}

func fileMode(path string) os.FileMode {
	if st, err := os.Stat(path); err == nil {
		return st.Mode()
	}
	return 0644
}

func backupFile(path string, content []byte) (string, error) {
	ts := time.Now().Format("20060102_150405")
	backup := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.bak.%s", filepath.Base(path), ts))
	if err := os.WriteFile(backup, content, 0644); err != nil {
		return "", err
	}
	return backup, nil
}

func normalizeNewlines(s string) string {
	return strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(s)
}
