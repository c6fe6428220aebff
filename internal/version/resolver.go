package version

import (
	"errors"
	"sort"
)

// DefaultMinUsage is the adoption a newer release needs before it is recommended.
const DefaultMinUsage = 10

// ErrCurrentNotReported means the running version is absent from the usage report.
var ErrCurrentNotReported = errors.New("version: running version not found in report")

// Decision 是一次解析的结果；Recommend 为空表示无需提示升级。
type Decision struct {
	Sorted    []UsageRecord `json:"sorted"`
	Position  int           `json:"position"`
	Recommend string        `json:"recommend,omitempty"`
	Usage     int           `json:"usage,omitempty"`
	Lossy     []string      `json:"lossy,omitempty"`
}

// Sort orders records newest first by SortKey. Ties keep the report order.
func Sort(records []UsageRecord) []UsageRecord {
	out := append([]UsageRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return SortKey(out[i].Version) > SortKey(out[j].Version)
	})
	return out
}

// Resolve picks the best-adopted version strictly newer than current.
//
// Walking from the version just above current towards the newest, a candidate replaces the
// running best when it has more usage, except that once some usage is recorded a candidate
// below minUsage is skipped. The pick is recommended only if its usage reaches minUsage.
func Resolve(records []UsageRecord, current string, minUsage int) (Decision, error) {
	sorted := Sort(records)
	d := Decision{Sorted: sorted, Position: -1}
	for i, r := range sorted {
		if Lossy(r.Version) {
			d.Lossy = append(d.Lossy, r.Version)
		}
		if d.Position < 0 && r.Version == current {
			d.Position = i
		}
	}
	if d.Position < 0 {
		return d, ErrCurrentNotReported
	}

	hasMost, most := -1, 0
	for i := d.Position - 1; i >= 0; i-- {
		count := sorted[i].UsageCount
		if hasMost == -1 || most < count {
			if most > 0 && count < minUsage {
				continue
			}
			hasMost, most = i, count
		}
	}
	if hasMost != -1 && most >= minUsage {
		d.Recommend = sorted[hasMost].Version
		d.Usage = most
	}
	return d, nil
}
