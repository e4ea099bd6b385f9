package worker

import "testing"

func TestIsLikelyContainerID(t *testing.T) {
	cases := map[string]bool{
		"a1b2c3d4e5f6":           true,
		"a1b2c3d4e5f678901234":   true,
		"tooshort":               false,
		"a1b2c3d4e5f6xyz0000000": false,
		"":                       false,
	}
	for s, want := range cases {
		if got := isLikelyContainerID(s); got != want {
			t.Errorf("isLikelyContainerID(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestCgroupContainerID_MissingFile(t *testing.T) {
	_, ok := cgroupContainerID("/nonexistent/path/for/test")
	if ok {
		t.Fatal("expected ok=false for a missing cgroup file")
	}
}

func TestInstanceID_NeverEmpty(t *testing.T) {
	if InstanceID() == "" {
		t.Fatal("InstanceID must always return a non-empty identifier")
	}
}
