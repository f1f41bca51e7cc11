package gedi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	internalhttp "github.com/example/go-gedi/gedi/internal/http"
	"github.com/example/go-gedi/gedi/model"
)

// Granules returns a lazy iterator over every granule of the given product
// level acquired between start and end, both inclusive. Day listing pages
// are fetched on demand, one day at a time, so enumerating a long range
// costs nothing until the iterator is advanced.
func (c *Client) Granules(level ProductLevel, start, end time.Time) *GranuleIterator {
	it := &GranuleIterator{
		client: c,
		level:  level,
		start:  truncateDay(start),
		end:    truncateDay(end),
	}
	if !level.Valid() {
		it.err = fmt.Errorf("gedi: unknown product level %q", level)
		it.done = true
		return it
	}
	if it.end.Before(it.start) {
		it.err = fmt.Errorf("gedi: end date %s precedes start date %s",
			it.end.Format("2006-01-02"), it.start.Format("2006-01-02"))
		it.done = true
		return it
	}
	it.day = it.start
	return it
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GranuleIterator walks granules day by day. The zero value is not valid;
// use Client.Granules. Next reports whether a granule is available, Granule
// returns it, and Err surfaces the first fetch or parse failure. After an
// error the iterator stays exhausted. Reset rewinds to the start date so
// the same sequence can be walked again.
type GranuleIterator struct {
	client *Client
	level  ProductLevel
	start  time.Time
	end    time.Time

	day   time.Time
	batch []model.Granule
	idx   int
	done  bool
	err   error
}

// Next advances the iterator, fetching listing pages as needed. It returns
// false once the date range is exhausted or an error occurred.
func (it *GranuleIterator) Next(ctx context.Context) bool {
	if it.done && it.err != nil {
		return false
	}
	if it.idx+1 < len(it.batch) {
		it.idx++
		return true
	}
	for !it.day.After(it.end) {
		batch, err := it.client.listDay(ctx, it.level, it.day)
		it.day = it.day.AddDate(0, 0, 1)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		if len(batch) == 0 {
			continue
		}
		it.batch = batch
		it.idx = 0
		return true
	}
	it.done = true
	return false
}

// Granule returns the current granule. Valid only after Next returned true.
func (it *GranuleIterator) Granule() model.Granule {
	if it.idx >= len(it.batch) {
		return model.Granule{}
	}
	return it.batch[it.idx]
}

// Err returns the first error encountered while iterating, if any.
func (it *GranuleIterator) Err() error { return it.err }

// Reset rewinds the iterator to the start date. A previous error is cleared
// unless it came from iterator construction.
func (it *GranuleIterator) Reset() {
	if it.err != nil && it.day.IsZero() {
		return // invalid level or date range, permanently failed
	}
	it.day = it.start
	it.batch = nil
	it.idx = 0
	it.done = false
	it.err = nil
}

// listDay fetches and parses one day's listing page. Days absent from the
// data pool (404) yield an empty batch rather than an error: GEDI coverage
// has gaps and an empty day is ordinary.
func (c *Client) listDay(ctx context.Context, level ProductLevel, day time.Time) ([]model.Granule, error) {
	dayURL := c.baseURL.JoinPath(level.collection(), day.Format("2006.01.02"))
	dayURL.Path += "/"
	page, err := c.FetchInMemory(ctx, dayURL.String())
	if err != nil {
		var statusErr *internalhttp.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	re := levelFileRE[level]
	var granules []model.Granule
	for _, href := range listingLinks(page) {
		name := strings.TrimPrefix(href, "./")
		if !re.MatchString(name) {
			continue
		}
		dataURL := dayURL.JoinPath(name).String()
		granules = append(granules, model.Granule{
			ID:          strings.TrimSuffix(name, ".h5"),
			DataURL:     dataURL,
			MetadataURL: dataURL + ".xml",
		})
	}
	sort.Slice(granules, func(i, j int) bool { return granules[i].ID < granules[j].ID })
	return granules, nil
}

// listingLinks extracts anchor hrefs from a data pool directory page.
func listingLinks(page []byte) []string {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					links = append(links, attr.Val)
					break
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return links
}
