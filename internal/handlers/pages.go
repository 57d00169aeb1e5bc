// Package handlers holds the view models rendered by the shared layout.
package handlers

import (
	"html/template"

	"alphadroid.org/devices-web/internal/nav"
	"alphadroid.org/devices-web/internal/seo"
)

// PageData is the view model for the shell layout and its content region.
type PageData struct {
	Title string
	Lang  string
	SEO   seo.Meta

	Hash string
	Nav  []nav.RenderedItem

	// Content is the navigator's rendered content region.
	Content  template.HTML
	Phase    nav.Phase
	ScrollTo string
	NotFound bool

	// Partial marks htmx swaps; the header is then sent out of band.
	Partial bool
}

// BuildPageData constructs the shell view model for hash.
func BuildPageData(lang, hash string, meta seo.Meta) PageData {
	return PageData{
		Title: meta.Title,
		Lang:  lang,
		SEO:   meta,
		Hash:  hash,
		Nav:   nav.Build(hash),
	}
}
