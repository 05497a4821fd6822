package pipeline

import (
	"errors"
	"log/slog"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// ResolvePoints looks up every identifier and drops the ones the reference
// data cannot resolve. Dropped identifiers are logged and counted; they never
// fail a run. Duplicate identifiers are resolved once.
func ResolvePoints(ids []string, ref domain.ReferenceData, logger *slog.Logger) (points []domain.Point, dropped int) {
	seen := make(map[string]struct{}, len(ids))
	points = make([]domain.Point, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		p, err := ref.Lookup(id)
		if err != nil {
			var le *domain.ReferenceLookupError
			if errors.As(err, &le) {
				logger.Debug("dropping unresolved point", "zip_code", id, "reason", le.Reason)
			} else {
				logger.Warn("reference lookup failed", "zip_code", id, "error", err)
			}
			dropped++
			continue
		}
		points = append(points, p)
	}
	if dropped > 0 {
		logger.Info("unresolved points dropped", "dropped", dropped, "resolved", len(points))
	}
	return points, dropped
}
