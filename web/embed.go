// Package web holds the dashboard's page templates and static assets.
package web

import "embed"

// TemplatesFS carries the layout, the overview and division pages, and the
// upload status partial returned to htmx.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS carries the stylesheet and the htmx upload-swap script served
// under /static/.
//
//go:embed static/app.css static/app.js
var StaticFS embed.FS
