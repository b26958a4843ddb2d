// Package hints extracts best-effort version hints from a page's HTML:
// cache-busting query parameters on known assets and the generator meta tag.
// Nothing here returns an error; a page without a usable hint simply yields
// no hint.
package hints

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"

	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
	"github.com/cmsprobe/cmsprobe/pkg/regexcache"
)

// Source says where a hint came from.
type Source string

const (
	SourceQueryParam    Source = "query-parameter"
	SourceMetaGenerator Source = "meta-generator"
)

// Hint is a version read from HTML.
type Hint struct {
	Version string `json:"version"`
	Source  Source `json:"source"`
}

// Set holds the hints found on one page. Nil fields were not found.
type Set struct {
	QueryParam *Hint
	Meta       *Hint
}

// Empty reports whether no hint was found.
func (s Set) Empty() bool {
	return s.QueryParam == nil && s.Meta == nil
}

// Extractor applies one profile's hint configuration.
type Extractor struct {
	cfg profile.Hints
}

// NewExtractor returns an extractor for cfg.
func NewExtractor(cfg profile.Hints) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract parses body once and runs every configured extractor.
func (e *Extractor) Extract(body []byte) Set {
	doc, ok := parse(body)
	if !ok {
		return Set{}
	}
	var s Set
	if h, ok := e.queryParam(doc); ok {
		s.QueryParam = &h
	}
	if h, ok := e.meta(doc); ok {
		s.Meta = &h
	}
	return s
}

// QueryParam returns the version carried by the configured query parameter.
func (e *Extractor) QueryParam(body []byte) (Hint, bool) {
	doc, ok := parse(body)
	if !ok {
		return Hint{}, false
	}
	return e.queryParam(doc)
}

// Meta returns the version carried by the generator meta tag.
func (e *Extractor) Meta(body []byte) (Hint, bool) {
	doc, ok := parse(body)
	if !ok {
		return Hint{}, false
	}
	return e.meta(doc)
}

func parse(body []byte) (*goquery.Document, bool) {
	if len(body) == 0 {
		return nil, false
	}
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	return goquery.NewDocumentFromNode(node), true
}

var assetAttrs = []struct{ selector, attr string }{
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"img[src]", "src"},
}

func (e *Extractor) queryParam(doc *goquery.Document) (Hint, bool) {
	q := e.cfg.QueryParam
	if q == nil {
		return Hint{}, false
	}

	var found string
	for _, a := range assetAttrs {
		doc.Find(a.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			raw, _ := sel.Attr(a.attr)
			u, err := url.Parse(strings.TrimSpace(raw))
			if err != nil || !strings.Contains(u.Path, q.PathContains) {
				return true
			}
			v := u.Query().Get(q.Param)
			if v == "" {
				return true
			}
			if q.Pattern != "" {
				re, err := regexcache.Get(q.Pattern)
				if err != nil || !re.MatchString(v) {
					return true
				}
			}
			found = v
			return false
		})
		if found != "" {
			return Hint{Version: found, Source: SourceQueryParam}, true
		}
	}
	return Hint{}, false
}

func (e *Extractor) meta(doc *goquery.Document) (Hint, bool) {
	if e.cfg.MetaPattern == "" {
		return Hint{}, false
	}
	fold := cases.Fold()
	generator := fold.String("generator")

	var found string
	doc.Find("meta[name]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		name, _ := sel.Attr("name")
		if fold.String(strings.TrimSpace(name)) != generator {
			return true
		}
		content, _ := sel.Attr("content")
		if v, ok := regexcache.Submatch(e.cfg.MetaPattern, strings.TrimSpace(content)); ok && v != "" {
			found = strings.TrimRight(v, ".")
			return false
		}
		return true
	})
	if found == "" {
		return Hint{}, false
	}
	return Hint{Version: found, Source: SourceMetaGenerator}, true
}

// Fetch GETs pageURL without following redirects and returns the body of a
// 200 or 403 answer. Anything else is logged at debug level and yields false.
// timeout bounds the request (0 = the prober default).
func Fetch(ctx context.Context, p *prober.Prober, pageURL string, header http.Header, timeout time.Duration, log logrus.FieldLogger) ([]byte, bool) {
	out := p.Do(ctx, prober.Task{
		URL:      pageURL,
		Method:   http.MethodGet,
		Header:   header,
		Timeout:  timeout,
		KeepBody: true,
	})
	if out.Err != nil {
		log.WithError(out.Err).WithField(logger.FieldURL, pageURL).Debug("html hint fetch failed")
		return nil, false
	}
	if out.Status != http.StatusOK && out.Status != http.StatusForbidden {
		log.WithField(logger.FieldURL, pageURL).Debugf("html hint fetch returned %d", out.Status)
		return nil, false
	}
	return out.Body, true
}
