package controller

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// InsightState is the per-chart insight status.
type InsightState struct {
	Text    string `json:"text,omitempty"`
	Loading bool   `json:"loading"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// sanitize strips all markup from generated insight text.
func sanitize(text string) string {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(text)))
}
