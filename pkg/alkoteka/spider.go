package alkoteka

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	errs "alkoscraper/pkg/errors"
	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
)

const (
	// SiteURL is the production site
	SiteURL = "https://alkoteka.com"

	DefaultInputFile = "input_urls.txt"
	DefaultPerPage   = 10000

	listingUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Request meta keys
const (
	MetaCategoryName = "category_name"
	MetaCityID       = "city_id"
	MetaTimestamp    = "timestamp"
	MetaItemSlug     = "item_slug"
)

// Options configures a Spider
type Options struct {
	InputFile string
	City      string
	PerPage   int
	// BaseURL overrides SiteURL
	BaseURL string
}

// Spider builds requests for the three crawl stages
type Spider struct {
	opts     Options
	cityID   uuid.UUID
	cityName string
	logger   logger.Logger
	now      func() time.Time
}

// New resolves the city and fills option defaults
func New(opts Options, log logger.Logger) *Spider {
	if opts.InputFile == "" {
		opts.InputFile = DefaultInputFile
	}
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = SiteURL
	}

	log = log.WithField("spider", "alkoteka")
	id, name := ResolveCity(opts.City, log)
	return &Spider{
		opts:     opts,
		cityID:   id,
		cityName: name,
		logger:   log,
		now:      time.Now,
	}
}

// City returns the resolved city name and id
func (s *Spider) City() (string, uuid.UUID) {
	return s.cityName, s.cityID
}

// StartRequests reads category URLs from the input file and returns one
// listing request per category. A missing or empty file yields no requests.
func (s *Spider) StartRequests() []*fetch.Request {
	inputPath, err := filepath.Abs(s.opts.InputFile)
	if err != nil {
		inputPath = s.opts.InputFile
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.ErrorWithFields("input file not found", map[string]interface{}{"path": inputPath})
		} else {
			s.logger.WithError(err).ErrorWithFields("failed to read input file", map[string]interface{}{"path": inputPath})
		}
		return nil
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var requests []*fetch.Request
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req, err := s.categoryRequest(line)
		if err != nil {
			s.logger.WithError(err).WarnWithFields("skipping category url", map[string]interface{}{"url": line})
			continue
		}
		requests = append(requests, req)
	}

	if len(requests) == 0 {
		s.logger.ErrorWithFields("no categories to crawl, check the input file", map[string]interface{}{"path": inputPath})
	}
	return requests
}

func (s *Spider) categoryRequest(categoryURL string) (*fetch.Request, error) {
	u, err := url.Parse(categoryURL)
	if err != nil {
		return nil, err
	}
	slug := path.Base(strings.TrimRight(u.Path, "/"))
	if slug == "." || slug == "/" || slug == "" {
		return nil, fmt.Errorf("no category slug in %q", categoryURL)
	}

	q := url.Values{}
	q.Set("city_uuid", s.cityID.String())
	q.Set("page", "1")
	q.Set("per_page", strconv.Itoa(s.opts.PerPage))
	q.Set("root_category_slug", slug)

	req, err := fetch.NewRequest(http.MethodGet, s.opts.BaseURL+"/web-api/v1/product?"+q.Encode(), s.ParseCategory)
	if err != nil {
		return nil, err
	}
	req.DontFilter = true
	req.Header.Set("User-Agent", listingUserAgent)
	req.Meta[MetaCategoryName] = slug
	req.Meta[MetaCityID] = s.cityID.String()

	s.logger.InfoWithFields("created category request", map[string]interface{}{
		"category": slug,
		"url":      req.URL.String(),
	})
	return req, nil
}

// ParseCategory schedules a detail request for every product in a listing
func (s *Spider) ParseCategory(_ context.Context, resp *fetch.Response) (fetch.Result, error) {
	var listing listResponse
	if err := resp.JSON(&listing); err != nil {
		return fetch.Result{}, errs.Wrap(errs.ErrorTypeParsing, "decode category listing "+resp.URL.String(), err)
	}
	if len(listing.Results) == 0 {
		s.logger.InfoWithFields("no products in category", map[string]interface{}{
			"url":    resp.URL.String(),
			"status": resp.Status,
		})
		return fetch.Result{}, nil
	}

	categoryName := ""
	if parent := listing.Results[0].Category.Parent; parent != nil {
		categoryName = parent.Name
	}
	s.logger.InfoWithFields("products in category", map[string]interface{}{
		"category": categoryName,
		"slug":     resp.Request.MetaString(MetaCategoryName),
		"count":    len(listing.Results),
	})

	cityID := resp.Request.MetaString(MetaCityID)
	if cityID == "" {
		cityID = s.cityID.String()
	}

	var result fetch.Result
	for _, p := range listing.Results {
		if p.Slug == "" {
			continue
		}
		q := url.Values{}
		q.Set("city_uuid", cityID)
		itemURL := s.opts.BaseURL + "/web-api/v1/product/" + url.PathEscape(p.Slug) + "?" + q.Encode()

		req, err := fetch.NewRequest(http.MethodGet, itemURL, s.ParseItem)
		if err != nil {
			s.logger.WithError(err).Warn("skipping product")
			continue
		}
		req.Meta[MetaTimestamp] = s.now().Unix()
		req.Meta[MetaItemSlug] = p.Slug
		s.logger.DebugWithFields("product request", map[string]interface{}{"url": itemURL})

		result.Requests = append(result.Requests, req)
	}
	return result, nil
}

// ParseItem builds a Product from a detail response
func (s *Spider) ParseItem(_ context.Context, resp *fetch.Response) (fetch.Result, error) {
	s.logger.InfoWithFields("processing product", map[string]interface{}{
		"url":    resp.URL.String(),
		"status": resp.Status,
	})

	var envelope detailResponse
	if err := resp.JSON(&envelope); err != nil {
		return fetch.Result{}, errs.Wrap(errs.ErrorTypeParsing, "decode product "+resp.URL.String(), err)
	}
	if isEmptyJSON(envelope.Results) {
		s.logger.InfoWithFields("no product data", map[string]interface{}{"url": resp.URL.String()})
		return fetch.Result{}, nil
	}

	var detail productDetail
	if err := json.Unmarshal(envelope.Results, &detail); err != nil {
		return fetch.Result{}, errs.Wrap(errs.ErrorTypeParsing, "decode product fields "+resp.URL.String(), err)
	}

	ts, _ := resp.Request.Meta[MetaTimestamp].(int64)
	slug := resp.Request.MetaString(MetaItemSlug)
	product := buildProduct(&detail, slug, s.opts.BaseURL, ts)
	return fetch.Result{Items: []interface{}{product}}, nil
}

func isEmptyJSON(raw []byte) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "{}", "[]", `""`, "false", "0":
		return true
	}
	return false
}
