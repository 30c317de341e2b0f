package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/toolhost/pkg/tool"
)

// ErrCandidateNotFound is returned by Find when no adapter knows the name.
var ErrCandidateNotFound = errors.New("tool candidate not found")

// Source labels for the built-in adapters.
const (
	SourceBuiltin   = "builtin"
	SourceDirectory = "directory"
)

// Candidate is one loadable tool found by a Discoverer. Open instantiates
// it; every call yields a fresh instance.
type Candidate struct {
	Name   string
	Source string
	Open   func(ctx context.Context) (tool.Tool, error)
}

// Discoverer finds loadable tools.
type Discoverer interface {
	// Discover enumerates every candidate the source currently offers.
	Discover(ctx context.Context) ([]Candidate, error)

	// Find returns the candidate for name, or ErrCandidateNotFound.
	Find(ctx context.Context, name string) (Candidate, error)
}

// StaticDiscovery serves a fixed, compiled-in list of candidates.
type StaticDiscovery struct {
	candidates []Candidate
}

// NewStaticDiscovery returns a discoverer over candidates.
func NewStaticDiscovery(candidates ...Candidate) *StaticDiscovery {
	return &StaticDiscovery{candidates: candidates}
}

// Builtin wraps a constructor of an in-process tool as a candidate.
func Builtin(name string, newTool func() tool.Tool) Candidate {
	return Candidate{
		Name:   name,
		Source: SourceBuiltin,
		Open: func(ctx context.Context) (tool.Tool, error) {
			return newTool(), nil
		},
	}
}

func (s *StaticDiscovery) Discover(ctx context.Context) ([]Candidate, error) {
	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out, nil
}

func (s *StaticDiscovery) Find(ctx context.Context, name string) (Candidate, error) {
	for _, c := range s.candidates {
		if c.Name == name {
			return c, nil
		}
	}
	return Candidate{}, fmt.Errorf("%w: %s", ErrCandidateNotFound, name)
}

// MultiDiscovery merges several adapters. Earlier adapters shadow later
// ones that offer a candidate with the same name.
type MultiDiscovery []Discoverer

func (m MultiDiscovery) Discover(ctx context.Context) ([]Candidate, error) {
	var (
		out  []Candidate
		errs []error
		seen = make(map[string]bool)
	)

	for _, d := range m {
		candidates, err := d.Discover(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, c := range candidates {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, c)
		}
	}

	return out, errors.Join(errs...)
}

func (m MultiDiscovery) Find(ctx context.Context, name string) (Candidate, error) {
	for _, d := range m {
		c, err := d.Find(ctx, name)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCandidateNotFound) {
			return Candidate{}, err
		}
	}
	return Candidate{}, fmt.Errorf("%w: %s", ErrCandidateNotFound, name)
}
