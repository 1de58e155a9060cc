package sink

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/analytics"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Multi fans a batch out to several transports concurrently. It fails when
// any transport fails; a retry resends to all of them.
type Multi struct {
	transports []analytics.Transport
	name       string
}

// NewMulti combines transports.
func NewMulti(transports ...analytics.Transport) *Multi {
	names := make([]string, 0, len(transports))
	for _, t := range transports {
		names = append(names, t.Name())
	}
	return &Multi{
		transports: transports,
		name:       "multi(" + strings.Join(names, ",") + ")",
	}
}

// Name implements analytics.Transport.
func (m *Multi) Name() string { return m.name }

// Send delivers batch to every transport and joins their errors.
func (m *Multi) Send(ctx context.Context, batch domain.Batch) error {
	errs := make([]error, len(m.transports))

	var g errgroup.Group
	for i, t := range m.transports {
		g.Go(func() error {
			errs[i] = t.Send(ctx, batch)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
