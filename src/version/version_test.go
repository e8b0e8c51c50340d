package version

import (
	"regexp"
	"testing"
)

// TestFlagEmpty fails if version.Flag is not empty, so development builds
// are not released by accident.
func TestFlagEmpty(t *testing.T) {
	if len(Flag) > 0 {
		t.Fatalf("Version Flag is not empty: %s", Flag)
	}
}

func TestVersionFormat(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+`).MatchString(Version) {
		t.Fatalf("Version %q does not start with major.minor.patch", Version)
	}
}
