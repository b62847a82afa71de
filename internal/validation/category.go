package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var categoryRegex = regexp.MustCompile(`^[a-z0-9-]{2,32}$`)

// ValidateCategory checks the category slug format. Empty means uncategorized.
func ValidateCategory(category string) error {
	if category == "" {
		return nil
	}
	if !categoryRegex.MatchString(category) {
		return fmt.Errorf("category must be 2-32 characters and contain only lowercase letters, numbers, and hyphens")
	}
	if strings.HasPrefix(category, "-") || strings.HasSuffix(category, "-") {
		return fmt.Errorf("category cannot start or end with a hyphen")
	}
	return nil
}

// NormalizeCategory lowercases and trims a user supplied category.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
