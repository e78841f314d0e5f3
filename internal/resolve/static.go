package resolve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/938134/check-hosts/internal/domain"
	"github.com/938134/check-hosts/internal/model"
)

var ErrUnknownDomain = errors.New("domain not listed")

// StaticSource serves candidates read from hosts-format text. Candidates keep
// file order and duplicates are not removed.
type StaticSource struct {
	byDomain map[string]map[model.Family][]model.Candidate
}

func ParseStatic(text string) (*StaticSource, error) {
	s := &StaticSource{byDomain: map[string]map[model.Family][]model.Candidate{}}

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected \"ip domain...\"", lineNo)
		}
		ip, err := netip.ParseAddr(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		c := model.Candidate(ip.Unmap().String())
		for _, token := range fields[1:] {
			d, ok := domain.NormalizeDomain(token)
			if !ok {
				continue
			}
			if s.byDomain[d] == nil {
				s.byDomain[d] = map[model.Family][]model.Candidate{}
			}
			s.byDomain[d][c.Family()] = append(s.byDomain[d][c.Family()], c)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func ReadStaticFile(path string) (*StaticSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseStatic(string(b))
}

func (s *StaticSource) Domains() int { return len(s.byDomain) }

func (s *StaticSource) Lookup(_ context.Context, name string, family model.Family) ([]model.Candidate, error) {
	d, ok := domain.NormalizeDomain(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}
	byFamily, ok := s.byDomain[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, d)
	}
	return append([]model.Candidate(nil), byFamily[family]...), nil
}
