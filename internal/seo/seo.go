// Package seo builds page metadata and JSON-LD payloads for the layout.
package seo

type OpenGraph struct {
	Title       string
	Description string
	Image       string
	Type        string
	URL         string
	SiteName    string
}

type Meta struct {
	Title       string
	Description string
	Canonical   string
	OG          OpenGraph
	JSONLD      []string
}

// Default returns the site-wide metadata for canonical base URL baseURL.
func Default(siteName, description, baseURL string) Meta {
	return Meta{
		Title:       siteName,
		Description: description,
		Canonical:   baseURL + "/",
		OG: OpenGraph{
			Title:       siteName,
			Description: description,
			Type:        "website",
			URL:         baseURL + "/",
			SiteName:    siteName,
		},
	}
}
