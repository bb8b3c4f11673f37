package version

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"v1.2.3", "v1.2.3", 0},
		{"v1.10.0", "v1.9.9", 1},
		{"1.2", "v1.2.0", 0},
		{"v0.3.0", "v0.3.1", -1},
		{"v2.0.0-rc1", "v1.9.0", 1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%s, %s): expected %d, got %d", c.a, c.b, c.want, got)
		}
	}
}

func TestCompatible(t *testing.T) {
	if !Compatible("v0.3.0", "v0.3.7") {
		t.Errorf("Expected patch releases to be compatible")
	}
	if Compatible("v0.3.0", "v0.4.0") {
		t.Errorf("Expected 0.x minor releases to be incompatible")
	}
	if !Compatible("v1.2.0", "v1.5.0") {
		t.Errorf("Expected minor releases to be compatible after 1.0")
	}
	if Compatible("v1.0.0", "v2.0.0") {
		t.Errorf("Expected major releases to be incompatible")
	}
}
