package version

import (
	"strconv"
	"strings"
)

// Current is the release shared by the CLI and the devserver.
const Current = "v0.3.0"

// Info is what the devserver reports on GET /version.
type Info struct {
	Version string `json:"version"`
}

// Compare orders two "vMAJOR.MINOR.PATCH" strings. Missing or malformed
// parts count as zero.
func Compare(v1, v2 string) int {
	parts1 := strings.Split(strings.TrimPrefix(v1, "v"), ".")
	parts2 := strings.Split(strings.TrimPrefix(v2, "v"), ".")

	for i := 0; i < len(parts1) || i < len(parts2); i++ {
		n1, n2 := part(parts1, i), part(parts2, i)
		if n1 > n2 {
			return 1
		}
		if n1 < n2 {
			return -1
		}
	}
	return 0
}

func part(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, _ := strconv.Atoi(strings.SplitN(parts[i], "-", 2)[0])
	return n
}

// Compatible reports whether a CLI and a backend can talk: same major, and
// for 0.x releases the same minor.
func Compatible(cli, backend string) bool {
	c := strings.Split(strings.TrimPrefix(cli, "v"), ".")
	b := strings.Split(strings.TrimPrefix(backend, "v"), ".")
	if part(c, 0) != part(b, 0) {
		return false
	}
	return part(c, 0) != 0 || part(c, 1) == part(b, 1)
}
