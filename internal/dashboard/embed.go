// Package dashboard holds the operator dashboard: the page list fold and the
// embedded templates that render it.
package dashboard

import "embed"

//go:embed templates/*.html
var Templates embed.FS

//go:embed assets/style.css
var Assets embed.FS
