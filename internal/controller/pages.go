package controller

import (
	"fmt"
	"sort"
	"strings"

	"github.com/derickschaefer/kpiboard/internal/model"
)

// Page is one dashboard page and the backend endpoint that serves it.
type Page struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Endpoint string `json:"endpoint"`
	Filtered bool   `json:"filtered"` // false when the endpoint ignores filter_type
}

// Pages lists the built-in pages in menu order.
var Pages = []Page{
	{Name: "dashboard", Title: "Dashboard", Endpoint: "dashboard", Filtered: true},
	{Name: "financial", Title: "Financial Performance", Endpoint: "financial-performance", Filtered: true},
	{Name: "risk", Title: "Risk & Fraud", Endpoint: "risk-and-fraud", Filtered: true},
	{Name: "operational", Title: "Operational Efficiency", Endpoint: "operational-efficiency", Filtered: true},
	{Name: "demographic", Title: "Demographic", Endpoint: "demographic", Filtered: false},
	{Name: "customers", Title: "Customer Insights", Endpoint: "customer-insights", Filtered: true},
	{Name: "reports", Title: "Gateway Fee Report", Endpoint: "gateway-fee", Filtered: true},
}

// Registry resolves page names, applying endpoint overrides from config.
type Registry struct {
	pages []Page
}

// NewRegistry returns the built-in pages with endpoints replaced by
// overrides[name]. Override keys that name no page are added as filtered
// pages of their own.
func NewRegistry(overrides map[string]string) *Registry {
	pages := make([]Page, len(Pages))
	copy(pages, Pages)
	seen := make(map[string]bool, len(pages))
	for i := range pages {
		seen[pages[i].Name] = true
		if ep, ok := overrides[pages[i].Name]; ok && ep != "" {
			pages[i].Endpoint = strings.Trim(ep, "/")
		}
	}

	var extra []string
	for name := range overrides {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		pages = append(pages, Page{
			Name:     name,
			Title:    name,
			Endpoint: strings.Trim(overrides[name], "/"),
			Filtered: true,
		})
	}
	return &Registry{pages: pages}
}

// All returns every page in menu order.
func (r *Registry) All() []Page {
	out := make([]Page, len(r.pages))
	copy(out, r.pages)
	return out
}

// Lookup finds a page by name, case-insensitively.
func (r *Registry) Lookup(name string) (Page, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range r.pages {
		if p.Name == n {
			return p, nil
		}
	}
	names := make([]string, len(r.pages))
	for i, p := range r.pages {
		names[i] = p.Name
	}
	return Page{}, fmt.Errorf("%w %q: expected one of %s", model.ErrUnknownPage, name, strings.Join(names, ", "))
}
