package loader

import (
	"sort"
	"strconv"
	"strings"
)

// compareVersions orders dotted versions numerically where both parts are
// numbers and lexically otherwise.
func compareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for k := 0; k < len(pa) || k < len(pb); k++ {
		var p1, p2 string
		if k < len(pa) {
			p1 = pa[k]
		}
		if k < len(pb) {
			p2 = pb[k]
		}
		n1, err1 := strconv.Atoi(p1)
		n2, err2 := strconv.Atoi(p2)
		if err1 == nil && err2 == nil {
			if n1 != n2 {
				if n1 < n2 {
					return -1
				}
				return 1
			}
			continue
		}
		if p1 != p2 {
			if p1 < p2 {
				return -1
			}
			return 1
		}
	}
	return 0
}

// sortNewestFirst is the order versions are listed in.
func sortNewestFirst(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool { return compareVersions(versions[i], versions[j]) > 0 })
}

// sortOldestFirst is the order builds are listed in.
func sortOldestFirst(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool { return compareVersions(versions[i], versions[j]) < 0 })
}
