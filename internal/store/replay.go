package store

import (
	"context"
	"fmt"
	"sort"
)

// DigestDiff is a fixture whose digest differs between two runs. An empty
// digest means the fixture is absent from that run.
type DigestDiff struct {
	Path  string `json:"path"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// CompareDigests returns the paths whose digests differ, sorted by path.
func CompareDigests(left, right map[string]string) []DigestDiff {
	paths := make(map[string]struct{}, len(left)+len(right))
	for p := range left {
		paths[p] = struct{}{}
	}
	for p := range right {
		paths[p] = struct{}{}
	}

	diffs := []DigestDiff{}
	for p := range paths {
		if left[p] != right[p] {
			diffs = append(diffs, DigestDiff{Path: p, Left: left[p], Right: right[p]})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
	return diffs
}

// CompareRuns compares the stored digests of two runs.
func (s *Store) CompareRuns(ctx context.Context, leftRun, rightRun string) ([]DigestDiff, error) {
	left, err := s.ReadDigests(ctx, leftRun)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	right, err := s.ReadDigests(ctx, rightRun)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	return CompareDigests(left, right), nil
}
