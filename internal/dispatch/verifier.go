package dispatch

import (
	"context"

	"github.com/and161185/keygate/internal/model"
)

// Verifier performs the gated lookup behind /check. Implementations own any
// external calls; the dispatcher only renders the verdict.
type Verifier interface {
	Verify(ctx context.Context, input string) (model.Verdict, error)
}

// Unavailable is the default verifier: no backend is configured.
type Unavailable struct{}

func (Unavailable) Verify(context.Context, string) (model.Verdict, error) {
	return model.VerdictUnavailable, nil
}
