package anonymizer

import "github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"

// Strip exposes the removal step of Enforce without anonymizing first.
func (a *Anonymizer) Strip(event domain.AnalyticsEvent) (domain.AnalyticsEvent, []string) {
	return a.strip(event.Clone())
}
