// Package portal crawls the state licensing portal's stable directory and
// turns each stable page into a Listing the geocoder can consume.
package portal

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const mapsPrefix = "https://maps.google.com/?q="

var (
	idPattern    = regexp.MustCompile(`^/stables/([0-9A-Za-z]+)$`)
	phonePattern = regexp.MustCompile(`Tel:\s*([0-9()\-]+)`)
	sitePattern  = regexp.MustCompile(`Website:\s*(\S+)`)
)

// Listing is one stable as published on the portal.
type Listing struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// ParseIDs returns the stable ids linked from a directory page, in page
// order and without duplicates.
func ParseIDs(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "portal: parse directory page")
	}

	seen := make(map[string]bool)
	var ids []string
	doc.Find(`a[href^="/stables/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := idPattern.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}
		seen[m[1]] = true
		ids = append(ids, m[1])
	})
	return ids, nil
}

// ParseListing extracts a stable from its page. The page must have exactly
// one heading, one article and one map link inside the article. Phone and
// website are optional; the first of each wins.
func ParseListing(id string, r io.Reader) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrapf(err, "portal: parse stable page %s", id)
	}

	h1 := doc.Find("h1")
	if n := h1.Length(); n != 1 {
		return nil, eris.Errorf("portal: stable %s: found %d names", id, n)
	}
	name := strings.TrimSpace(h1.Text())
	if name == "" {
		return nil, eris.Errorf("portal: stable %s: empty name", id)
	}

	article := doc.Find("article")
	if n := article.Length(); n != 1 {
		return nil, eris.Errorf("portal: stable %s: found %d articles", id, n)
	}

	link := article.Find(`a[href^="` + mapsPrefix + `"]`)
	if n := link.Length(); n != 1 {
		return nil, eris.Errorf("portal: stable %s: found %d addresses", id, n)
	}
	href, _ := link.Attr("href")
	address := mapsQuery(href)
	if address == "" {
		return nil, eris.Errorf("portal: stable %s: empty address", id)
	}

	l := &Listing{ID: id, Name: name, Address: address}
	text := article.Text()
	if m := phonePattern.FindStringSubmatch(text); m != nil {
		l.Phone = m[1]
	}
	if m := sitePattern.FindStringSubmatch(text); m != nil {
		l.Website = m[1]
	}
	return l, nil
}

// mapsQuery returns the address carried in a map link. The portal does not
// always escape it, so an undecodable query is used as-is. Line breaks and
// runs of spaces collapse to one space.
func mapsQuery(href string) string {
	q := strings.TrimPrefix(href, mapsPrefix)
	if dec, err := url.QueryUnescape(q); err == nil {
		q = dec
	}
	return strings.Join(strings.Fields(q), " ")
}
