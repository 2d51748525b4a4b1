package portal

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/farmmap/internal/fetcher"
)

// DefaultBaseURL is the portal's stable directory.
const DefaultBaseURL = "https://portal.mda.maryland.gov/stables"

// Options configures a Crawler.
type Options struct {
	BaseURL string
	// Workers bounds concurrent stable page fetches.
	Workers int
	// RateLimit caps page requests per second across all workers. Values
	// <= 0 disable the limiter.
	RateLimit float64
	// MaxPages stops the directory walk if the portal never returns an
	// empty page.
	MaxPages int
}

// Crawler reads the portal through a fetcher.Fetcher.
type Crawler struct {
	fetcher fetcher.Fetcher
	limiter *rate.Limiter
	opts    Options
}

// New creates a Crawler. Zero options fall back to the portal defaults.
func New(f fetcher.Fetcher, opts Options) *Crawler {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 100
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Crawler{fetcher: f, limiter: limiter, opts: opts}
}

// Result is the outcome of one crawl. Listings follow the order of the
// requested ids; Failed holds ids whose page could not be fetched or parsed.
type Result struct {
	Listings []Listing
	Failed   []string
}

// ListIDs walks the directory from page 1 until a page links no stables.
func (c *Crawler) ListIDs(ctx context.Context) ([]string, error) {
	log := zap.L().With(zap.String("portal", c.opts.BaseURL))
	seen := make(map[string]bool)
	var all []string

	for page := 1; page <= c.opts.MaxPages; page++ {
		ids, err := c.pageIDs(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			log.Info("portal: directory walk complete", zap.Int("pages", page-1), zap.Int("ids", len(all)))
			return all, nil
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
		log.Debug("portal: directory page", zap.Int("page", page), zap.Int("ids", len(ids)))
	}

	log.Warn("portal: page cap reached", zap.Int("max_pages", c.opts.MaxPages), zap.Int("ids", len(all)))
	return all, nil
}

func (c *Crawler) pageIDs(ctx context.Context, page int) ([]string, error) {
	body, err := c.get(ctx, c.opts.BaseURL+"?page="+strconv.Itoa(page))
	if err != nil {
		return nil, eris.Wrapf(err, "portal: directory page %d", page)
	}
	defer body.Close() //nolint:errcheck
	return ParseIDs(body)
}

// Fetch downloads and parses one stable page.
func (c *Crawler) Fetch(ctx context.Context, id string) (*Listing, error) {
	body, err := c.get(ctx, c.opts.BaseURL+"/"+url.PathEscape(id))
	if err != nil {
		return nil, eris.Wrapf(err, "portal: stable %s", id)
	}
	defer body.Close() //nolint:errcheck
	return ParseListing(id, body)
}

// Crawl fetches every id with up to Workers pages in flight. A page that
// fails is logged and recorded in Result.Failed; only cancellation stops
// the crawl.
func (c *Crawler) Crawl(ctx context.Context, ids []string) (*Result, error) {
	listings := make([]*Listing, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l, err := c.Fetch(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("portal: stable page failed", zap.String("id", id), zap.Error(err))
				return nil
			}
			listings[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "portal: crawl")
	}

	res := &Result{Listings: make([]Listing, 0, len(ids))}
	for i, l := range listings {
		if l == nil {
			res.Failed = append(res.Failed, ids[i])
			continue
		}
		res.Listings = append(res.Listings, *l)
	}
	zap.L().Info("portal: crawl complete",
		zap.Int("listings", len(res.Listings)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

func (c *Crawler) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "portal: rate limit")
	}
	return c.fetcher.Download(ctx, rawURL)
}
