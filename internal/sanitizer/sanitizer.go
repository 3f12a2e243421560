// Package sanitizer cleans inbound email HTML and rewrites embedded
// image references. Rewriting runs before sanitization so the policy's
// URL scheme allow-list only ever sees final signed HTTP URLs; cid: and
// data: references must not survive into stored HTML.
package sanitizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"mailroom/internal/logger"
	"mailroom/pkg/metrics"
)

type Sanitizer struct {
	policy *bluemonday.Policy
	logger logger.Logger
}

func New(log logger.Logger) *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "div", "span", "blockquote", "pre", "code", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"em", "strong", "b", "i", "u", "s", "sub", "sup",
		"ul", "ol", "li", "dl", "dt", "dd",
		"table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption",
	)

	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height", "loading").OnElements("img")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

	p.AllowURLSchemes("http", "https", "mailto", "tel", "callto", "cid", "blob")
	p.AllowDataURIImages()

	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)

	return &Sanitizer{
		policy: p,
		logger: log,
	}
}

var imgTagPattern = regexp.MustCompile(`(?i)<img\b[^>]*>`)
var loadingAttrPattern = regexp.MustCompile(`(?i)\bloading\s*=`)

// Sanitize strips everything outside the allow-list (scripts, styles,
// event handlers, forms, javascript: hrefs) and adds loading="lazy" to
// every image.
func (s *Sanitizer) Sanitize(html string) string {
	start := time.Now()

	clean := s.policy.Sanitize(html)
	clean = addLazyLoading(clean)

	metrics.ObserveSanitizeDuration(time.Since(start))
	return clean
}

func addLazyLoading(html string) string {
	return imgTagPattern.ReplaceAllStringFunc(html, func(tag string) string {
		if loadingAttrPattern.MatchString(tag) {
			return tag
		}
		return strings.Replace(tag, "<img", `<img loading="lazy"`, 1)
	})
}
