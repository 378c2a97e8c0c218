// Package snippets renders the code a merchant adds to a storefront to track
// a landing page.
package snippets

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/shopspring/decimal"
)

type Framework string

const (
	FrameworkHTML   Framework = "html"
	FrameworkLiquid Framework = "liquid"
	FrameworkNextJS Framework = "nextjs"
	FrameworkReact  Framework = "react"
	FrameworkVue    Framework = "vue"
)

// Frameworks lists the supported frameworks in menu order.
var Frameworks = []Framework{FrameworkLiquid, FrameworkHTML, FrameworkNextJS, FrameworkReact, FrameworkVue}

// Label is the human name shown in the framework picker.
func (f Framework) Label() string {
	switch f {
	case FrameworkLiquid:
		return "Shopify theme (Liquid)"
	case FrameworkNextJS:
		return "Next.js"
	case FrameworkReact:
		return "React"
	case FrameworkVue:
		return "Vue"
	}
	return "HTML (vanilla JavaScript)"
}

type Config struct {
	PageID    string
	ServerURL string
	// SaleAmount pre-fills the sale button; Liquid uses the product price.
	SaleAmount decimal.Decimal
}

type SnippetFile struct {
	Filename string
	Content  string
}

type templateData struct {
	PageID    string
	ServerURL string
	Amount    string
}

var templates = map[Framework][]struct{ filename, body string }{
	FrameworkHTML: {{"landing.html", `<!-- ShopBoost page {{.PageID}} -->
<script src="{{.ServerURL}}/sb.js" data-page="{{.PageID}}" defer></script>

<!-- Clicks on this button report a sale -->
<button data-sb-sale data-sb-amount="{{.Amount}}">Buy now</button>
`}},
	FrameworkLiquid: {{"sections/shopboost.liquid", `{% comment %} ShopBoost page {{.PageID}} {% endcomment %}
<script src="{{.ServerURL}}/sb.js" data-page="{{.PageID}}" defer></script>

<button type="submit" name="add" data-sb-sale data-sb-amount="{{"{{"}} product.price | divided_by: 100.0 {{"}}"}}">
  {{"{{"}} 'products.product.add_to_cart' | t {{"}}"}}
</button>
`}},
	FrameworkNextJS: {{"app/layout.tsx", `import Script from 'next/script';

// ShopBoost page {{.PageID}}
export function ShopBoost() {
  return (
    <Script
      src="{{.ServerURL}}/sb.js"
      data-page="{{.PageID}}"
      strategy="afterInteractive"
    />
  );
}
`}, {"components/BuyButton.tsx", saleButtonJSX}},
	FrameworkReact: {{"src/useShopBoost.ts", `import { useEffect } from 'react';

// ShopBoost page {{.PageID}}
export function useShopBoost() {
  useEffect(() => {
    const s = document.createElement('script');
    s.src = '{{.ServerURL}}/sb.js';
    s.dataset.page = '{{.PageID}}';
    s.defer = true;
    document.body.appendChild(s);
    return () => { s.remove(); };
  }, []);
}
`}, {"src/BuyButton.tsx", saleButtonJSX}},
	FrameworkVue: {{"src/components/ShopBoost.vue", `<script setup>
import { onMounted } from 'vue';

// ShopBoost page {{.PageID}}
onMounted(() => {
  const s = document.createElement('script');
  s.src = '{{.ServerURL}}/sb.js';
  s.dataset.page = '{{.PageID}}';
  s.defer = true;
  document.body.appendChild(s);
});
</script>

<template>
  <button data-sb-sale data-sb-amount="{{.Amount}}">Buy now</button>
</template>
`}},
}

const saleButtonJSX = `export function BuyButton() {
  return (
    <button data-sb-sale data-sb-amount="{{.Amount}}">
      Buy now
    </button>
  );
}
`

// Generate renders the files for framework. Unknown frameworks get plain
// HTML.
func Generate(framework Framework, config Config) ([]SnippetFile, error) {
	if config.PageID == "" || config.ServerURL == "" {
		return nil, fmt.Errorf("page id and server url are required")
	}
	files, ok := templates[framework]
	if !ok {
		files = templates[FrameworkHTML]
	}

	data := templateData{
		PageID:    config.PageID,
		ServerURL: config.ServerURL,
		Amount:    config.SaleAmount.StringFixed(2),
	}

	out := make([]SnippetFile, 0, len(files))
	for _, f := range files {
		content, err := render(f.filename, f.body, data)
		if err != nil {
			return nil, err
		}
		out = append(out, SnippetFile{Filename: f.filename, Content: content})
	}
	return out, nil
}

func render(name, content string, data templateData) (string, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// ParseFramework accepts a framework name; ok is false for unknown names.
func ParseFramework(s string) (Framework, bool) {
	for _, f := range Frameworks {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}
