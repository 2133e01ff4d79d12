package ingest

import (
	"fmt"
	"sort"
)

// CheckSources fails when some of the requested source ids matched no row.
func CheckSources(kind string, requested, found []int64) error {
	seen := make(map[int64]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	missing := []int64{}
	for _, id := range requested {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return fmt.Errorf("unknown %s ids %v", kind, missing)
}
