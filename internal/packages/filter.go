package packages

import (
	"strings"
	"time"

	"github.com/parcelpoint/parcelpoint-sync/pkg/enums"
	"github.com/parcelpoint/parcelpoint-sync/pkg/models"
)

// Filter selects a view of the canonical collection. It is a pure predicate:
// applying it never touches the network and never mutates the collection.
type Filter struct {
	Status *enums.PackageStatus
	// Query is matched case-insensitively against tracking code, notes and
	// vendor.
	Query string
	From  *time.Time
	To    *time.Time
}

// Matches reports whether the package satisfies every set predicate.
func (f Filter) Matches(p models.Package) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(p.TrackingCode), q) &&
			!strings.Contains(strings.ToLower(p.Notes), q) &&
			!strings.Contains(strings.ToLower(p.Vendor), q) {
			return false
		}
	}
	if f.From != nil && p.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && p.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (f Filter) apply(items []models.Package) []models.Package {
	filtered := make([]models.Package, 0, len(items))
	for _, p := range items {
		if f.Matches(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Stats are derived per-status counts. They are recomputed from the source
// collection on every successful mutation and never cached on their own.
type Stats struct {
	Total    int
	ByStatus map[enums.PackageStatus]int
}

func computeStats(items []models.Package) Stats {
	stats := Stats{
		Total:    len(items),
		ByStatus: make(map[enums.PackageStatus]int),
	}
	for _, p := range items {
		stats.ByStatus[p.Status]++
	}
	return stats
}

func (s Stats) clone() Stats {
	byStatus := make(map[enums.PackageStatus]int, len(s.ByStatus))
	for status, count := range s.ByStatus {
		byStatus[status] = count
	}
	return Stats{Total: s.Total, ByStatus: byStatus}
}
