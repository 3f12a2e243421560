package sanitizer

import (
	"regexp"
	"strings"

	"mailroom/pkg/metrics"
)

var (
	cidSrcPattern     = regexp.MustCompile(`(?i)src=["']cid:([^"']+)["']`)
	dataURISrcPattern = regexp.MustCompile(`(?i)src=["'](data:(image/[a-zA-Z0-9.+-]+);base64,([A-Za-z0-9+/=\s]+?))["']`)
)

// DataURIImage is one inline base64 image found in HTML.
type DataURIImage struct {
	DataURI string
	MIME    string
	Base64  string
}

// NormalizeCID strips the angle brackets and surrounding whitespace a
// Content-ID header may carry.
func NormalizeCID(cid string) string {
	return strings.Trim(strings.TrimSpace(cid), "<>")
}

// ExtractCIDReferences returns the de-duplicated set of content IDs
// referenced by src="cid:..." attributes, in first-seen order.
func ExtractCIDReferences(html string) []string {
	seen := make(map[string]struct{})
	var cids []string

	for _, match := range cidSrcPattern.FindAllStringSubmatch(html, -1) {
		cid := NormalizeCID(match[1])
		if cid == "" {
			continue
		}
		if _, ok := seen[cid]; ok {
			continue
		}
		seen[cid] = struct{}{}
		cids = append(cids, cid)
	}

	return cids
}

// ExtractDataURIImages returns every distinct base64 image embedded
// directly in img src attributes.
func ExtractDataURIImages(html string) []DataURIImage {
	seen := make(map[string]struct{})
	var images []DataURIImage

	for _, match := range dataURISrcPattern.FindAllStringSubmatch(html, -1) {
		uri := match[1]
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		images = append(images, DataURIImage{
			DataURI: uri,
			MIME:    match[2],
			Base64:  match[3],
		})
	}

	return images
}

// RewriteCIDReferences substitutes resolved cid: references with their
// signed URLs. A reference missing from the map stays verbatim with a
// logged warning; the ticket text degrades instead of losing content.
func (s *Sanitizer) RewriteCIDReferences(html string, cidMap map[string]string) string {
	return cidSrcPattern.ReplaceAllStringFunc(html, func(match string) string {
		sub := cidSrcPattern.FindStringSubmatch(match)
		cid := NormalizeCID(sub[1])

		url, ok := cidMap[cid]
		if !ok {
			metrics.UnresolvedReferencesTotal.WithLabelValues("cid").Inc()
			s.logger.Warnw("Unresolved cid reference left in HTML", "content_id", cid)
			return match
		}

		return `src="` + url + `"`
	})
}

// RewriteDataURIImages substitutes data-URI image sources keyed by the
// full data URI string.
func (s *Sanitizer) RewriteDataURIImages(html string, dataURIMap map[string]string) string {
	return dataURISrcPattern.ReplaceAllStringFunc(html, func(match string) string {
		sub := dataURISrcPattern.FindStringSubmatch(match)
		uri := sub[1]

		url, ok := dataURIMap[uri]
		if !ok {
			metrics.UnresolvedReferencesTotal.WithLabelValues("data_uri").Inc()
			s.logger.Warnw("Unresolved data-uri reference left in HTML", "mime", sub[2])
			return match
		}

		return `src="` + url + `"`
	})
}
