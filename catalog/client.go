package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxPageLimit is the upstream hard ceiling on datastore_search page size.
const maxPageLimit = 32000

// Client fetches records from a CKAN catalog over HTTP.
//
// Expected endpoints under BaseURL:
//
//	GET {base}/resource_show?id={resource_id}
//	GET {base}/datastore_search?resource_id=...&limit=...&offset=...&filters={json}
type Client struct {
	baseURL    string
	resourceID string
	dateField  string
	pageSize   int
	userAgent  string
	client     *http.Client
	log        zerolog.Logger
}

type ClientOptions struct {
	BaseURL    string
	ResourceID string
	DateField  string        // upstream column used for incremental filters, e.g. "OCCURRED ON"
	PageSize   int           // records per page during FetchAllSince; clamped to maxPageLimit
	Timeout    time.Duration // per-request timeout
	UserAgent  string
	Logger     zerolog.Logger
}

func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	rid := strings.TrimSpace(opts.ResourceID)
	if rid == "" {
		return nil, errors.New("ResourceID is required")
	}
	dateField := strings.TrimSpace(opts.DateField)
	if dateField == "" {
		return nil, errors.New("DateField is required")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 10000
	}
	if pageSize > maxPageLimit {
		pageSize = maxPageLimit
	}
	to := opts.Timeout
	if to <= 0 {
		to = 120 * time.Second
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "crime-data-sync/1.0"
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		resourceID: rid,
		dateField:  dateField,
		pageSize:   pageSize,
		userAgent:  ua,
		client:     &http.Client{Timeout: to},
		log:        opts.Logger,
	}, nil
}

// ckanEnvelope is the common CKAN response wrapper.
type ckanEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

type searchResult struct {
	Records []RawRecord `json:"records"`
	Total   int         `json:"total"`
}

func (c *Client) Metadata(ctx context.Context) (DatasetMetadata, error) {
	u, err := url.Parse(c.baseURL + "/resource_show")
	if err != nil {
		return DatasetMetadata{}, &FetchError{Op: "resource_show", Err: err}
	}
	q := u.Query()
	q.Set("id", c.resourceID)
	u.RawQuery = q.Encode()

	body, status, err := c.doGET(ctx, u.String())
	if err != nil {
		return DatasetMetadata{}, &FetchError{Op: "resource_show", StatusCode: status, Err: err}
	}
	var env ckanEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return DatasetMetadata{}, &FetchError{Op: "resource_show", StatusCode: status, Err: fmt.Errorf("payload parse: %w", err)}
	}
	if !env.Success {
		return DatasetMetadata{}, &FetchError{Op: "resource_show", StatusCode: status, Err: errors.New("api reported success=false")}
	}
	var md DatasetMetadata
	if err := json.Unmarshal(env.Result, &md); err != nil {
		return DatasetMetadata{}, &FetchError{Op: "resource_show", StatusCode: status, Err: fmt.Errorf("result parse: %w", err)}
	}
	return md, nil
}

func (c *Client) FetchPage(ctx context.Context, since *time.Time, limit, offset int) ([]RawRecord, int, error) {
	if limit <= 0 {
		limit = c.pageSize
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	u, err := url.Parse(c.baseURL + "/datastore_search")
	if err != nil {
		return nil, 0, &FetchError{Op: "datastore_search", Err: err}
	}
	q := u.Query()
	q.Set("resource_id", c.resourceID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if since != nil {
		// CKAN accepts PostgreSQL-style comparison filters as a JSON map.
		filters, err := json.Marshal(map[string]string{
			c.dateField: ">" + since.Format("2006-01-02"),
		})
		if err != nil {
			return nil, 0, &FetchError{Op: "datastore_search", Err: err}
		}
		q.Set("filters", string(filters))
	}
	u.RawQuery = q.Encode()

	body, status, err := c.doGET(ctx, u.String())
	if err != nil {
		return nil, 0, &FetchError{Op: "datastore_search", StatusCode: status, Err: err}
	}
	var env ckanEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, &FetchError{Op: "datastore_search", StatusCode: status, Err: fmt.Errorf("payload parse: %w", err)}
	}
	if !env.Success {
		return nil, 0, &FetchError{Op: "datastore_search", StatusCode: status, Err: errors.New("api reported success=false")}
	}
	var res searchResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return nil, 0, &FetchError{Op: "datastore_search", StatusCode: status, Err: fmt.Errorf("result parse: %w", err)}
	}
	return res.Records, res.Total, nil
}

func (c *Client) FetchAllSince(ctx context.Context, since *time.Time) ([]RawRecord, error) {
	return fetchAll(ctx, c, since, c.pageSize, c.log)
}

func (c *Client) TotalRecords(ctx context.Context) (int, error) {
	_, total, err := c.FetchPage(ctx, nil, 1, 0)
	return total, err
}

func (c *Client) doGET(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	status := resp.StatusCode
	b, _ := io.ReadAll(resp.Body)
	if status < 200 || status >= 300 {
		return nil, status, fmt.Errorf("http status %d", status)
	}
	return b, status, nil
}

// fetchAll is the shared pagination loop behind FetchAllSince. It requests
// pages of pageSize with increasing offset and stops on a short or empty page.
// A page error stops pagination; whatever was collected is returned with it.
func fetchAll(ctx context.Context, f pageFetcher, since *time.Time, pageSize int, log zerolog.Logger) ([]RawRecord, error) {
	if pageSize <= 0 {
		pageSize = 10000
	}
	var all []RawRecord
	offset := 0
	for {
		records, total, err := f.FetchPage(ctx, since, pageSize, offset)
		if err != nil {
			return all, err
		}
		if len(records) == 0 {
			return all, nil
		}
		all = append(all, records...)
		offset += pageSize
		log.Info().
			Int("fetched", len(all)).
			Int("total_available", total).
			Msg("catalog fetch progress")
		if len(records) < pageSize {
			return all, nil
		}
	}
}
