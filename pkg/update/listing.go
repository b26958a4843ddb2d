package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cmsprobe/cmsprobe/pkg/iohelper"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/wordlist"
)

// RefreshWordlists scrapes the plugin and theme listings. When the listing
// names composer packages, they are mapped to install folders.
func (b *Builder) RefreshWordlists(ctx context.Context, listing *profile.Listing) (plugins, themes []string, err error) {
	if listing == nil {
		return nil, nil, ErrNoListing
	}

	plugins, err = b.Scrape(ctx, listing, listing.Plugins)
	if err != nil {
		return nil, nil, err
	}
	themes, err = b.Scrape(ctx, listing, listing.Themes)
	if err != nil {
		return nil, nil, err
	}

	if listing.Packagist {
		b.notice("Converting composer packages into folder names 1/2.")
		if plugins, err = b.ResolveFolders(ctx, plugins); err != nil {
			return nil, nil, err
		}
		b.notice("Converting composer packages into folder names 2/2.")
		if themes, err = b.ResolveFolders(ctx, themes); err != nil {
			return nil, nil, err
		}
	}
	return plugins, themes, nil
}

// Scrape walks the pages of src until one is empty, adds nothing new, or
// the listing maximum is reached.
func (b *Builder) Scrape(ctx context.Context, listing *profile.Listing, src profile.ListingSource) ([]string, error) {
	if src.URL == "" {
		return nil, nil
	}

	var names []string
	seen := make(map[string]struct{})
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		param := listing.FirstPage + i
		if listing.Pagination == profile.PaginationSkip {
			param = i * listing.PerPage
		}
		pageURL := fmt.Sprintf(src.URL, param)

		page, err := b.fetchListing(ctx, pageURL, src, i > 0)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, name := range page {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
			added++
		}
		b.log.WithField(logger.FieldURL, pageURL).Debugf("%d names on page", len(page))

		if added == 0 {
			break
		}
		if listing.Max > 0 && len(names) >= listing.Max {
			names = names[:listing.Max]
			break
		}
	}
	return wordlist.Deduplicate(names), nil
}

// fetchListing returns the names on one page. With pastFirst set a 404 is
// an empty page rather than an error.
func (b *Builder) fetchListing(ctx context.Context, pageURL string, src profile.ListingSource, pastFirst bool) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("update: listing %s: %w", pageURL, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update: listing %s: %w", pageURL, err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound && pastFirst {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update: listing %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, iohelper.LargeMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("update: parse listing %s: %w", pageURL, err)
	}

	var names []string
	doc.Find(src.Selector).Each(func(_ int, s *goquery.Selection) {
		var name string
		if src.Attr != "" {
			v, ok := s.Attr(src.Attr)
			if !ok {
				return
			}
			if src.Attr == "href" {
				name = lastSegment(v)
			} else {
				name = strings.TrimSpace(v)
			}
		} else {
			name = strings.TrimSpace(s.Text())
		}
		if name != "" {
			names = append(names, name)
		}
	})
	return names, nil
}

// lastSegment returns the final path segment of a link:
// "https://wordpress.org/plugins/akismet/" gives "akismet".
func lastSegment(href string) string {
	p := href
	if u, err := url.Parse(href); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
