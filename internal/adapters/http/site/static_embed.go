package site

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/**
var staticFS embed.FS

//go:embed templates/*.html
var templateFS embed.FS

// FS returns an http.FileSystem for the embedded stylesheet and assets.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

// parseTemplates parses the embedded page templates.
func parseTemplates() (*template.Template, error) {
	return template.New("").ParseFS(templateFS, "templates/*.html")
}
