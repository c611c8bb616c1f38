package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}

func clampPageSize(size int) int {
	if size <= 0 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

// NameSanitizer strips markup from free-text student names. The same policy is applied on every
// path that stores or looks up a name so exact matching stays consistent.
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer builds a sanitizer backed by the bluemonday strict policy.
func NewNameSanitizer() NameSanitizer {
	return NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean returns the trimmed name without markup.
func (n NameSanitizer) Clean(name string) string {
	if n.policy == nil {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(html.UnescapeString(n.policy.Sanitize(name)))
}

func uintPtr(v uint) *uint {
	return &v
}
