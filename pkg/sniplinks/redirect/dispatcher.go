// Package redirect resolves short codes to their destinations.
package redirect

import (
	"context"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

// Resolution is the outcome of a lookup. Link is set only when Found.
type Resolution struct {
	Found bool
	Link  *models.Link
}

// Dispatcher looks up codes in the link store.
type Dispatcher struct {
	store    store.LinkStore
	reporter report.Reporter
}

// NewDispatcher creates a dispatcher. A nil reporter discards reports.
func NewDispatcher(st store.LinkStore, reporter report.Reporter) *Dispatcher {
	if reporter == nil {
		reporter = report.Discard
	}
	return &Dispatcher{store: st, reporter: reporter}
}

// Resolve finds the link for code. A missing code is not an error. A store
// failure or timeout is reported and also resolves as not found, so visitors
// land on the not-found page instead of an error; the error is returned for
// callers that want it.
func (d *Dispatcher) Resolve(ctx context.Context, code string) (Resolution, error) {
	link, err := d.store.FindLinkByCode(ctx, code)
	if err != nil {
		if store.IsNotFound(err) {
			return Resolution{}, nil
		}
		d.reporter.Report(err, "resolve short code", report.Fields(ctx, "code", code)...)
		return Resolution{}, err
	}
	return Resolution{Found: true, Link: link}, nil
}
