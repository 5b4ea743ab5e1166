// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package client implements an OAI-PMH 2.0 harvesting client: the six
// protocol verbs plus the GetMetadata extension, lazy iteration over paged
// list responses, transparent retry on transient statuses, and metadata
// decoding through the format registry.
//
// The minimal harvest loop:
//
//	c := client.New("https://repository.example/oai")
//	it, err := c.ListRecords(ctx, oaipmh.ListArgs{Prefix: "oai_dc"})
//	if err != nil {
//		return err
//	}
//	for it.Next() {
//		rec := it.Item()
//		...
//	}
//	return it.Err()
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html/charset"

	"github.com/openharvest/oaipmh"
	"github.com/openharvest/oaipmh/metadata"
)

// userAgent is the User-Agent header on every request. Repositories
// whitelist harvesters by this string, so it matches the original toolkit.
const userAgent = "pyoai"

// RetryPolicy controls how the engine treats transiently failing statuses.
type RetryPolicy struct {
	// WaitDefault is the pause before the next attempt when the response
	// carries no integer Retry-After header.
	WaitDefault time.Duration
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// ExpectedStatuses are the statuses that trigger a retry instead of a
	// transport error.
	ExpectedStatuses map[int]bool
}

// DefaultRetryPolicy retries 503 responses up to five times, waiting two
// minutes unless the repository names a shorter Retry-After.
var DefaultRetryPolicy = RetryPolicy{
	WaitDefault:      120 * time.Second,
	MaxRetries:       5,
	ExpectedStatuses: map[int]bool{http.StatusServiceUnavailable: true},
}

type options struct {
	registry   *metadata.Registry
	httpClient *http.Client
	logger     *slog.Logger
	retry      RetryPolicy
	forceGET   bool
	localFile  bool
	scrub      bool
	username   string
	password   string
}

// Option configures a [Client].
type Option func(*options)

// WithRegistry sets the metadata format registry records are decoded with.
// Defaults to [metadata.DefaultRegistry].
func WithRegistry(r *metadata.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithHTTPClient sets the HTTP client requests go through. Defaults to a
// plain [http.Client]; deadlines come from the per-call context.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRetryPolicy overrides [DefaultRetryPolicy].
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithCredentials sends HTTP basic credentials with every request.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithForceGET issues GET requests with query arguments instead of the
// default form-encoded POST, for repositories that reject POST.
func WithForceGET() Option {
	return func(o *options) { o.forceGET = true }
}

// WithLocalFile treats the base URL as a filesystem path holding one
// response document and substitutes a file read for the HTTP round-trip.
func WithLocalFile() Option {
	return func(o *options) { o.localFile = true }
}

// WithBadCharacterScrubbing replaces bytes that are not valid UTF-8 with
// the Unicode replacement character before parsing, salvaging responses
// from repositories that serve broken encodings.
func WithBadCharacterScrubbing() Option {
	return func(o *options) { o.scrub = true }
}

// Client is an OAI-PMH harvesting client bound to one repository base URL.
//
// A Client is safe for one call at a time; [Client.UpdateGranularity]
// mutates serialization state and must not race in-flight requests.
// Distinct clients are always independent.
type Client struct {
	baseURL     string
	registry    *metadata.Registry
	http        *http.Client
	logger      *slog.Logger
	retry       RetryPolicy
	forceGET    bool
	localFile   bool
	scrub       bool
	username    string
	password    string
	granularity oaipmh.Granularity

	// sleep pauses between retries; tests substitute it.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a client for the repository at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := &options{retry: DefaultRetryPolicy}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = metadata.DefaultRegistry
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		registry:    o.registry,
		http:        o.httpClient,
		logger:      o.logger,
		retry:       o.retry,
		forceGET:    o.forceGET,
		localFile:   o.localFile,
		scrub:       o.scrub,
		username:    o.username,
		password:    o.password,
		granularity: oaipmh.GranularitySecond,
		sleep:       sleepContext,
	}
}

// Identify fetches the repository descriptor.
func (c *Client) Identify(ctx context.Context) (oaipmh.Identify, error) {
	doc, err := c.request(ctx, url.Values{"verb": {string(oaipmh.VerbIdentify)}})
	if err != nil {
		return oaipmh.Identify{}, err
	}
	return decodeIdentify(doc)
}

// UpdateGranularity asks the repository for its datestamp granularity and
// pins the serialization of from and until arguments to it: day-granular
// repositories get YYYY-MM-DD values, second-granular ones the full form.
func (c *Client) UpdateGranularity(ctx context.Context) error {
	id, err := c.Identify(ctx)
	if err != nil {
		return err
	}
	c.granularity = id.Granularity
	return nil
}

// GetRecord fetches one record in the given metadata format.
func (c *Client) GetRecord(ctx context.Context, prefix, identifier string) (oaipmh.Record, error) {
	doc, err := c.request(ctx, url.Values{
		"verb":           {string(oaipmh.VerbGetRecord)},
		"identifier":     {identifier},
		"metadataPrefix": {prefix},
	})
	if err != nil {
		return oaipmh.Record{}, err
	}
	node := xmlquery.QuerySelector(doc, exprGetRecord)
	if node == nil {
		return oaipmh.Record{}, &oaipmh.XMLSyntaxError{Err: errors.New("response lacks a record element")}
	}
	return c.decodeRecord(node, prefix)
}

// GetMetadata issues the non-standard GetMetadata verb, which answers with
// a record's bare metadata fragment instead of the protocol envelope, and
// decodes it with the registered reader for prefix. Only repositories built
// on this toolkit's server support it.
func (c *Client) GetMetadata(ctx context.Context, prefix, identifier string) (*oaipmh.Metadata, error) {
	doc, err := c.request(ctx, url.Values{
		"verb":           {string(oaipmh.VerbGetMetadata)},
		"identifier":     {identifier},
		"metadataPrefix": {prefix},
	})
	if err != nil {
		return nil, err
	}
	return c.registry.Read(prefix, doc)
}

// ListMetadataFormats lists the formats the repository can disseminate,
// repository-wide or for a single item when identifier is non-empty.
func (c *Client) ListMetadataFormats(ctx context.Context, identifier string) ([]oaipmh.MetadataFormat, error) {
	args := url.Values{"verb": {string(oaipmh.VerbListMetadataFormats)}}
	if identifier != "" {
		args.Set("identifier", identifier)
	}
	doc, err := c.request(ctx, args)
	if err != nil {
		return nil, err
	}
	var formats []oaipmh.MetadataFormat
	for _, node := range xmlquery.QuerySelectorAll(doc, exprFormats) {
		formats = append(formats, decodeFormat(node))
	}
	return formats, nil
}

// ListIdentifiers streams the headers of the records matching args.
func (c *Client) ListIdentifiers(ctx context.Context, args oaipmh.ListArgs) (*Iterator[oaipmh.Header], error) {
	return newIterator(ctx, func(ctx context.Context, token string) ([]oaipmh.Header, string, error) {
		doc, err := c.listRequest(ctx, oaipmh.VerbListIdentifiers, args, token)
		if err != nil {
			return nil, "", err
		}
		nodes := xmlquery.QuerySelectorAll(doc, exprIdentifiers)
		headers := make([]oaipmh.Header, 0, len(nodes))
		for _, node := range nodes {
			h, err := decodeHeader(node)
			if err != nil {
				return nil, "", err
			}
			headers = append(headers, h)
		}
		return headers, tokenText(doc), nil
	})
}

// ListRecords streams the records matching args, decoding each through the
// registry reader for args.Prefix.
func (c *Client) ListRecords(ctx context.Context, args oaipmh.ListArgs) (*Iterator[oaipmh.Record], error) {
	return newIterator(ctx, func(ctx context.Context, token string) ([]oaipmh.Record, string, error) {
		doc, err := c.listRequest(ctx, oaipmh.VerbListRecords, args, token)
		if err != nil {
			return nil, "", err
		}
		nodes := xmlquery.QuerySelectorAll(doc, exprRecords)
		records := make([]oaipmh.Record, 0, len(nodes))
		for _, node := range nodes {
			rec, err := c.decodeRecord(node, args.Prefix)
			if err != nil {
				return nil, "", err
			}
			records = append(records, rec)
		}
		return records, tokenText(doc), nil
	})
}

// ListSets streams the repository's set hierarchy.
func (c *Client) ListSets(ctx context.Context) (*Iterator[oaipmh.Set], error) {
	return newIterator(ctx, func(ctx context.Context, token string) ([]oaipmh.Set, string, error) {
		doc, err := c.listRequest(ctx, oaipmh.VerbListSets, oaipmh.ListArgs{}, token)
		if err != nil {
			return nil, "", err
		}
		var sets []oaipmh.Set
		for _, node := range xmlquery.QuerySelectorAll(doc, exprSets) {
			sets = append(sets, decodeSet(node))
		}
		return sets, tokenText(doc), nil
	})
}

// listRequest performs one page of a list verb: the filter arguments on the
// first call, only the continuation token afterwards.
func (c *Client) listRequest(ctx context.Context, verb oaipmh.Verb, args oaipmh.ListArgs, token string) (*xmlquery.Node, error) {
	values := url.Values{"verb": {string(verb)}}
	if token != "" {
		values.Set("resumptionToken", token)
		return c.request(ctx, values)
	}
	if args.Prefix != "" {
		values.Set("metadataPrefix", args.Prefix)
	}
	if args.Set != "" {
		values.Set("set", args.Set)
	}
	if args.From != nil {
		values.Set("from", oaipmh.FormatDatestamp(*args.From, c.granularity))
	}
	if args.Until != nil {
		values.Set("until", oaipmh.FormatDatestamp(*args.Until, c.granularity))
	}
	return c.request(ctx, values)
}

// request performs one round-trip and returns the parsed document, after
// raising any protocol error the envelope carries.
func (c *Client) request(ctx context.Context, args url.Values) (*xmlquery.Node, error) {
	body, contentType, err := c.roundTrip(ctx, args)
	if err != nil {
		return nil, err
	}
	doc, err := c.parseBody(body, contentType)
	if err != nil {
		return nil, err
	}
	if err := protocolError(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) roundTrip(ctx context.Context, args url.Values) (body []byte, contentType string, err error) {
	if c.localFile {
		body, err := os.ReadFile(c.baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("reading local response: %w", err)
		}
		return body, "", nil
	}

	retries := 0
	for {
		req, err := c.newHTTPRequest(ctx, args)
		if err != nil {
			return nil, "", err
		}
		c.logger.Debug("issuing request",
			slog.String("url", c.baseURL),
			slog.String("verb", args.Get("verb")))
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("requesting %s: %w", c.baseURL, err)
		}
		if c.retry.ExpectedStatuses[resp.StatusCode] {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if retries >= c.retry.MaxRetries {
				return nil, "", &RetriesExceededError{Status: resp.StatusCode, Retries: retries}
			}
			retries++
			wait := retryWait(resp.Header.Get("Retry-After"), c.retry.WaitDefault)
			c.logger.Info("repository busy, backing off",
				slog.Int("status", resp.StatusCode),
				slog.Duration("wait", wait),
				slog.Int("retry", retries))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, "", err
			}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, "", fmt.Errorf("reading response body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, "", &TransportError{Status: resp.StatusCode}
		}
		return body, resp.Header.Get("Content-Type"), nil
	}
}

func (c *Client) newHTTPRequest(ctx context.Context, args url.Values) (*http.Request, error) {
	var req *http.Request
	var err error
	if c.forceGET {
		target := c.baseURL
		if encoded := args.Encode(); encoded != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + encoded
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
			strings.NewReader(args.Encode()))
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", userAgent)
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// parseBody decodes the response into a document. A charset named by the
// Content-Type header is translated up front; encodings declared only in
// the XML prolog are handled by the parser itself. With scrubbing on,
// bytes that are not valid UTF-8 are replaced before parsing.
func (c *Client) parseBody(body []byte, contentType string) (*xmlquery.Node, error) {
	var input io.Reader = bytes.NewReader(body)
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label, ok := params["charset"]; ok && !strings.EqualFold(label, "utf-8") {
			translated, err := charset.NewReaderLabel(label, input)
			if err != nil {
				return nil, &oaipmh.XMLSyntaxError{Err: err}
			}
			input = translated
		}
	}
	if c.scrub {
		decoded, err := io.ReadAll(input)
		if err != nil {
			return nil, &oaipmh.XMLSyntaxError{Err: err}
		}
		input = bytes.NewReader(bytes.ToValidUTF8(decoded, []byte(string(utf8.RuneError))))
	}
	doc, err := xmlquery.Parse(input)
	if err != nil {
		return nil, &oaipmh.XMLSyntaxError{Err: err}
	}
	return doc, nil
}

// retryWait resolves the pause before the next attempt: the Retry-After
// value when it parses as a non-negative integer, the policy default
// otherwise.
func retryWait(retryAfter string, fallback time.Duration) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(retryAfter))
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// sleepContext pauses for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
