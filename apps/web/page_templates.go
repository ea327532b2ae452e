package main

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
)

//go:embed templates/*.tmpl static/*
var pageAssetsFS embed.FS

type pageTemplateRenderer struct {
	env string
}

func newPageTemplateRenderer(env string) *pageTemplateRenderer {
	return &pageTemplateRenderer{env: env}
}

// templatesForRender parses the layout plus one content template. In
// development the files are read from disk so edits show up without a rebuild.
func (r *pageTemplateRenderer) templatesForRender(contentTemplatePath string) (*template.Template, error) {
	var sourceFS fs.FS
	if r.env == "development" {
		sourceFS = os.DirFS(".")
	} else {
		sourceFS = pageAssetsFS
	}

	templates, err := template.New("layout.tmpl").Funcs(template.FuncMap{
		"coord": func(v float64) string {
			return fmt.Sprintf("%.6f", v)
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}).ParseFS(sourceFS, "templates/layout.tmpl", contentTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return templates, nil
}

func pageStaticFileSystem(env string) (http.FileSystem, error) {
	if env == "development" {
		return http.Dir("static"), nil
	}

	sub, err := fs.Sub(pageAssetsFS, "static")
	if err != nil {
		return nil, fmt.Errorf("page static fs: %w", err)
	}
	return http.FS(sub), nil
}
