package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// DisallowedMarkers are annotations a candidate edit must never introduce: a
// completion that disables a test instead of repairing it is rejected.
var DisallowedMarkers = []string{"@Ignore", "org.junit.Ignore"}

// EnsureTestMethodPresent fails when the named test method's declaration is
// no longer in the file.
func EnsureTestMethodPresent(javaText, methodName string) error {
	re := regexp.MustCompile(`\bvoid\s+` + regexp.QuoteMeta(methodName) + `\s*\(`)
	if !re.MatchString(javaText) {
		return fmt.Errorf("test method disappeared: %s", methodName)
	}
	return nil
}

// EnsureNoDisallowedMarkers fails when the text contains any suppression
// marker.
func EnsureNoDisallowedMarkers(javaText string) error {
	for _, m := range DisallowedMarkers {
		if strings.Contains(javaText, m) {
			return fmt.Errorf("disallowed marker found: %s", m)
		}
	}
	return nil
}
