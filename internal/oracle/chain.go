package oracle

import (
	"context"
	"fmt"

	"github.com/roach88/fixharness/internal/fixture"
)

// Chain asks each oracle in turn. The first oracle to answer a site wins;
// diagnostics from every oracle are kept.
type Chain []Oracle

func (c Chain) Check(ctx context.Context, fx *fixture.Fixture) (*Report, error) {
	out := NewReport()
	for i, o := range c {
		r, err := o.Check(ctx, fx)
		if err != nil {
			return nil, fmt.Errorf("oracle %d: %w", i, err)
		}
		for idx, typ := range r.Types {
			if _, ok := out.Types[idx]; !ok {
				out.Types[idx] = typ
			}
		}
		out.Diagnostics = append(out.Diagnostics, r.Diagnostics...)
	}
	out.SortDiagnostics()
	return out, nil
}
