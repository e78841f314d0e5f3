package hostsfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/938134/check-hosts/internal/model"
)

func TestRender(t *testing.T) {
	at := time.Date(2026, 10, 19, 2, 30, 15, 999, time.UTC)
	got := Render(
		[]Entry{{IP: "140.82.112.4", Domain: "github.com"}},
		[]Entry{{IP: "2606:50c0:8000::153", Domain: "github.io"}},
		at,
	)
	want := "# IPv4 Hosts\n" +
		"140.82.112.4                github.com\n" +
		"\n" +
		"# IPv6 Hosts\n" +
		"2606:50c0:8000::153                                github.io\n" +
		"\n" +
		"# Generated at: 2026-10-19T10:30:15+08:00\n"
	if got != want {
		t.Fatalf("render mismatch:\n%q\nwant\n%q", got, want)
	}
}

func TestRenderEmptyBlocks(t *testing.T) {
	got := Render(nil, []Entry{{IP: "", Domain: "skipped.example"}}, time.Unix(0, 0))
	if !strings.Contains(got, "# No IPv4 entries") || !strings.Contains(got, "# No IPv6 entries") {
		t.Fatalf("expected placeholders:\n%s", got)
	}
}

func TestEntriesFromResults(t *testing.T) {
	results := []model.DomainResult{
		{Domain: "a.example", IPv4: model.Outcome{Found: true, Winner: "192.0.2.1"}},
		{Domain: "b.example", Err: errors.New("lookup failed")},
		{Domain: "c.example", IPv4: model.Outcome{Found: true, Winner: "192.0.2.3"}, IPv6: model.Outcome{Found: true, Winner: "2001:db8::3"}},
	}
	v4 := EntriesFromResults(results, model.IPv4)
	if len(v4) != 2 || v4[0].Domain != "a.example" || v4[1].IP != "192.0.2.3" {
		t.Fatalf("unexpected v4 entries: %+v", v4)
	}
	v6 := EntriesFromResults(results, model.IPv6)
	if len(v6) != 1 || v6[0].Domain != "c.example" {
		t.Fatalf("unexpected v6 entries: %+v", v6)
	}
}

func TestApplyManagedBlock(t *testing.T) {
	orig := "127.0.0.1 localhost\r\n" + beginMarker + "\n1.1.1.1 a.com\n" + endMarker + "\n::1 localhost\n"
	block := BuildManagedBlock([]Entry{{IP: "2.2.2.2", Domain: "b.com"}, {IP: " ", Domain: "c.com"}})
	next := ApplyManagedBlock(orig, block)
	if strings.Count(next, beginMarker) != 1 || strings.Count(next, endMarker) != 1 {
		t.Fatalf("managed block marker count mismatch:\n%s", next)
	}
	if !strings.Contains(next, "2.2.2.2 b.com") || strings.Contains(next, "c.com") {
		t.Fatalf("unexpected block content:\n%s", next)
	}
	if strings.Contains(next, "1.1.1.1 a.com") {
		t.Fatalf("old mapping still present:\n%s", next)
	}
	if !strings.HasPrefix(next, "127.0.0.1 localhost\n::1 localhost\n") {
		t.Fatalf("unmanaged lines not kept:\n%s", next)
	}
}

func TestWriteWithBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	hostsPath := filepath.Join(dir, "hosts")
	if err := os.WriteFile(hostsPath, []byte("127.0.0.1 localhost\n"), 0644); err != nil {
		t.Fatal(err)
	}

	backup, newContent, err := WriteWithBackup(hostsPath, []Entry{{IP: "1.2.3.4", Domain: "example.com"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("backup not created: %v", err)
	}
	b, _ := os.ReadFile(hostsPath)
	if string(b) != newContent {
		t.Fatalf("written content mismatch")
	}

	if err := RestoreBackup(backup, hostsPath); err != nil {
		t.Fatal(err)
	}
	restored, _ := os.ReadFile(hostsPath)
	if string(restored) != "127.0.0.1 localhost\n" {
		t.Fatalf("restore mismatch: %q", string(restored))
	}
	if err := RestoreBackup(" ", hostsPath); err == nil {
		t.Fatal("expected error for empty backup path")
	}
}

func TestWriteFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "hosts")
	if err := WriteFile(path, "x\n"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != "x\n" {
		t.Fatalf("unexpected file content %q, %v", b, err)
	}
}

func TestManagedBlockMatchesRenderedEntries(t *testing.T) {
	entries := []Entry{
		{IP: " 192.0.2.1 ", Domain: "a.example"},
		{IP: "", Domain: "skipped.example"},
		{IP: "2001:db8::1", Domain: " "},
		{IP: "2001:db8::2", Domain: "b.example"},
	}
	block := BuildManagedBlock(entries)
	want := beginMarker + "\n192.0.2.1 a.example\n2001:db8::2 b.example\n" + endMarker + "\n"
	if block != want {
		t.Fatalf("managed block mismatch:\n%q\nwant\n%q", block, want)
	}

	rendered := renderBlock(entries, ipv4Width, "# none")
	lines := strings.Split(rendered, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected the same two entries rendered, got %q", rendered)
	}
	for i, e := range []Entry{entries[0], entries[3]} {
		if f := strings.Fields(lines[i]); len(f) != 2 || f[0] != strings.TrimSpace(e.IP) || f[1] != e.Domain {
			t.Fatalf("line %d = %q", i, lines[i])
		}
	}
}

func TestWriteIfChangedIgnoresTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	v4 := []Entry{{IP: "192.0.2.1", Domain: "a.example"}}
	at := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	wrote, err := WriteIfChanged(path, Render(v4, nil, at))
	if err != nil || !wrote {
		t.Fatalf("first write: wrote=%v err=%v", wrote, err)
	}
	wrote, err = WriteIfChanged(path, Render(v4, nil, at.Add(time.Hour)))
	if err != nil || wrote {
		t.Fatalf("same entries should not rewrite: wrote=%v err=%v", wrote, err)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "2026-10-19T08:00:00+08:00") {
		t.Fatalf("original stamp should be kept:\n%s", b)
	}

	v4[0].IP = "192.0.2.2"
	wrote, err = WriteIfChanged(path, Render(v4, nil, at.Add(time.Hour)))
	if err != nil || !wrote {
		t.Fatalf("changed entries should rewrite: wrote=%v err=%v", wrote, err)
	}
	b, _ = os.ReadFile(path)
	if !strings.Contains(string(b), "192.0.2.2") {
		t.Fatalf("expected new winner in file:\n%s", b)
	}
}
