// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package server implements the repository side of OAI-PMH 2.0: verb
// dispatch, argument validation, resumption-token paging over a backend
// repository, and rendering of protocol-compliant response documents.
//
// A [Server] wraps an [oaipmh.Repository] (or an
// [oaipmh.BatchingRepository]) and answers one request per [Server.Handle]
// call. [Server.ServeHTTP] adapts it to an HTTP endpoint accepting the
// protocol's GET and form-encoded POST requests.
package server

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/openharvest/oaipmh"
	"github.com/openharvest/oaipmh/metadata"
)

// DefaultBatchSize is the page size used when no [WithBatchSize] option is
// given.
const DefaultBatchSize = 10

type options struct {
	registry    *metadata.Registry
	logger      *slog.Logger
	batchSize   int
	clock       func() time.Time
	extraNS     []xml.Attr
	getMetadata bool
}

// Option configures a [Server].
type Option func(*options)

// WithRegistry sets the metadata format registry the server writes record
// payloads with. Defaults to [metadata.DefaultRegistry].
func WithRegistry(r *metadata.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBatchSize sets the number of items per list page. Defaults to
// [DefaultBatchSize].
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithClock overrides the clock stamped into <responseDate>. Defaults to
// [time.Now]; tests use it for deterministic documents.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithNamespace declares an additional namespace on the <OAI-PMH> root, for
// repositories whose description or about fragments use one.
func WithNamespace(prefix, uri string) Option {
	return func(o *options) {
		o.extraNS = append(o.extraNS, xml.Attr{
			Name:  xml.Name{Local: "xmlns:" + prefix},
			Value: uri,
		})
	}
}

// WithGetMetadata enables the non-standard GetMetadata verb, which responds
// with a record's bare metadata fragment instead of the protocol envelope.
// Without this option the verb is rejected as illegal.
func WithGetMetadata() Option {
	return func(o *options) { o.getMetadata = true }
}

// Server answers OAI-PMH requests from a backend repository.
//
// A Server is safe for concurrent use as long as its repository is; the
// server itself holds no per-request state beyond the cached base URL.
type Server struct {
	pager       pager
	registry    *metadata.Registry
	logger      *slog.Logger
	clock       func() time.Time
	extraNS     []xml.Attr
	getMetadata bool

	handlers map[oaipmh.Verb]handlerFunc

	mu      sync.Mutex
	baseURL string
}

type handlerFunc func(ctx context.Context, env *envelope, req *request) error

// New returns a server over a non-paging repository. List verbs are paged
// by the stateless resumption adapter: every page re-runs the backend query,
// so tokens carry no server state at the cost of O(result size) work per
// page. Backends that can page natively should use [NewBatching] instead.
func New(repo oaipmh.Repository, opts ...Option) *Server {
	o := applyOptions(opts)
	return newServer(&statelessPager{repo: repo, batch: o.batchSize}, o)
}

// NewBatching returns a server over a repository with native paging. The
// adapter asks for one item beyond each page to decide whether to issue a
// continuation token.
func NewBatching(repo oaipmh.BatchingRepository, opts ...Option) *Server {
	o := applyOptions(opts)
	return newServer(&batchingPager{repo: repo, batch: o.batchSize}, o)
}

func applyOptions(opts []Option) *options {
	o := &options{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = metadata.DefaultRegistry
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.batchSize <= 0 {
		o.batchSize = DefaultBatchSize
	}
	return o
}

func newServer(p pager, o *options) *Server {
	s := &Server{
		pager:       p,
		registry:    o.registry,
		logger:      o.logger,
		clock:       o.clock,
		extraNS:     o.extraNS,
		getMetadata: o.getMetadata,
	}
	s.handlers = map[oaipmh.Verb]handlerFunc{
		oaipmh.VerbGetRecord:           s.handleGetRecord,
		oaipmh.VerbIdentify:            s.handleIdentify,
		oaipmh.VerbListIdentifiers:     s.handleListIdentifiers,
		oaipmh.VerbListMetadataFormats: s.handleListMetadataFormats,
		oaipmh.VerbListRecords:         s.handleListRecords,
		oaipmh.VerbListSets:            s.handleListSets,
	}
	return s
}

// request is one parsed protocol request: the verb, the backend-facing
// arguments, and the raw argument strings echoed in the <request> element.
type request struct {
	verb       oaipmh.Verb
	identifier string
	token      string
	args       oaipmh.ListArgs
	echo       requestNode
}

// listWindow resolves the arguments and cursor a list handler operates on,
// decoding the resumption token when the request carries one.
func (r *request) listWindow() (oaipmh.ListArgs, int, error) {
	if r.token == "" {
		return r.args, 0, nil
	}
	return decodeToken(r.token)
}

// Handle answers a single protocol request. body is the complete response
// document: a verb payload on success, an error envelope when the request
// or the backend signalled a protocol error. The rendered protocol errors
// are also returned for observability. err is non-nil only for failures
// outside the protocol (backend faults, an unreachable Identify); those
// produce no body and are the transport adapter's to report.
func (s *Server) Handle(ctx context.Context, query url.Values) (body []byte, protocolErrs []*oaipmh.Error, err error) {
	req, err := s.parseRequest(query)
	if err == nil {
		body, err = s.dispatch(ctx, req)
		if err == nil {
			return body, nil, nil
		}
	}
	perrs := oaipmh.CollectErrors(err)
	if len(perrs) == 0 {
		return nil, nil, err
	}
	s.logger.Debug("answering with protocol error",
		slog.String("verb", string(req.verb)), slog.Any("error", err))
	body, err = s.renderErrors(ctx, req, perrs)
	if err != nil {
		return nil, perrs, err
	}
	return body, perrs, nil
}

// ServeHTTP adapts the server to HTTP: arguments come from the query string
// on GET and the form body on POST. Protocol errors are part of the
// response document and answer with status 200, as the protocol requires;
// only failures outside the protocol produce a 5xx.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var query url.Values
	switch r.Method {
	case http.MethodGet:
		query = r.URL.Query()
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "cannot parse form body", http.StatusBadRequest)
			return
		}
		query = r.PostForm
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, _, err := s.Handle(r.Context(), query)
	if err != nil {
		s.logger.Error("request failed outside the protocol", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write(body)
}

// parseRequest normalizes the flat argument map into a request: it resolves
// the verb, parses the datestamp window, and applies the verb's argument
// schema. Every rejection is a badVerb or badArgument protocol error.
func (s *Server) parseRequest(query url.Values) (*request, error) {
	args := make(map[string]string, len(query))
	for key := range query {
		args[key] = query.Get(key)
	}

	req := &request{}
	verb := args["verb"]
	delete(args, "verb")
	if verb == "" {
		return req, oaipmh.NewError(oaipmh.CodeBadVerb, "Required verb argument not found.")
	}
	req.echo.Verb = verb
	req.verb = oaipmh.Verb(verb)
	spec, known := oaipmh.ResumptionSpecs[req.verb]
	if !known || (req.verb == oaipmh.VerbGetMetadata && !s.getMetadata) {
		return req, oaipmh.NewError(oaipmh.CodeBadVerb, "Illegal verb: %s", verb)
	}

	// Datestamps are canonicalized before schema validation so that the
	// backend only ever sees parsed timestamps. until covers the whole
	// named day when day-granular.
	var fromGranularity, untilGranularity oaipmh.Granularity
	if value := args["from"]; value != "" {
		t, g, err := oaipmh.ParseDatestamp(value)
		if err != nil {
			return req, oaipmh.NewError(oaipmh.CodeBadArgument,
				"The value '%s' of the argument 'from' is not valid.", value)
		}
		req.args.From = &t
		req.echo.From = value
		fromGranularity = g
	}
	if value := args["until"]; value != "" {
		t, g, err := oaipmh.ParseDatestampInclusive(value)
		if err != nil {
			return req, oaipmh.NewError(oaipmh.CodeBadArgument,
				"The value '%s' of the argument 'until' is not valid.", value)
		}
		req.args.Until = &t
		req.echo.Until = value
		untilGranularity = g
	}
	if fromGranularity != "" && untilGranularity != "" && fromGranularity != untilGranularity {
		return req, oaipmh.NewError(oaipmh.CodeBadArgument,
			"The request has different granularities for the from and until parameters")
	}

	if _, err := oaipmh.ValidateArguments(spec, args); err != nil {
		return req, err
	}

	req.identifier = args["identifier"]
	req.args.Prefix = args["metadataPrefix"]
	req.args.Set = args["set"]
	req.token = args["resumptionToken"]
	req.echo.Identifier = req.identifier
	req.echo.MetadataPrefix = req.args.Prefix
	req.echo.Set = req.args.Set
	req.echo.ResumptionToken = req.token
	return req, nil
}

func (s *Server) dispatch(ctx context.Context, req *request) ([]byte, error) {
	if req.verb == oaipmh.VerbGetMetadata {
		return s.handleGetMetadata(ctx, req)
	}
	env, err := s.newEnvelope(ctx, req.echo)
	if err != nil {
		return nil, err
	}
	if err := s.handlers[req.verb](ctx, env, req); err != nil {
		return nil, err
	}
	return env.marshal()
}

// repositoryURL returns the repository base URL stamped into every
// <request> element. It is resolved through Identify once and cached for
// the server's lifetime.
func (s *Server) repositoryURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseURL == "" {
		id, err := s.pager.identify(ctx)
		if err != nil {
			return "", err
		}
		s.baseURL = id.BaseURL
	}
	return s.baseURL, nil
}

func (s *Server) newEnvelope(ctx context.Context, echo requestNode) (*envelope, error) {
	base, err := s.repositoryURL(ctx)
	if err != nil {
		return nil, err
	}
	echo.URL = base
	return &envelope{
		XMLNS:             namespaceOAI,
		XMLNSXSI:          namespaceXSI,
		XSISchemaLocation: oaiSchemaLocation,
		ExtraNS:           s.extraNS,
		ResponseDate:      oaipmh.FormatDatestamp(s.clock(), oaipmh.GranularitySecond),
		Request:           &echo,
	}, nil
}

// renderErrors produces the error envelope: no verb payload, one <error>
// element per protocol error. Request arguments are not echoed for badVerb
// and badArgument responses, where they may themselves be illegal.
func (s *Server) renderErrors(ctx context.Context, req *request, perrs []*oaipmh.Error) ([]byte, error) {
	echo := req.echo
	for _, pe := range perrs {
		if pe.Code == oaipmh.CodeBadVerb || pe.Code == oaipmh.CodeBadArgument {
			echo = requestNode{}
			break
		}
	}
	env, err := s.newEnvelope(ctx, echo)
	if err != nil {
		return nil, err
	}
	for _, pe := range perrs {
		env.Errors = append(env.Errors, errorNode{Code: string(pe.Code), Message: pe.Message})
	}
	return env.marshal()
}

func (s *Server) handleIdentify(ctx context.Context, env *envelope, _ *request) error {
	id, err := s.pager.identify(ctx)
	if err != nil {
		return err
	}
	node := newIdentifyNode(id)
	env.Identify = &node
	return nil
}

func (s *Server) handleGetRecord(ctx context.Context, env *envelope, req *request) error {
	rec, err := s.pager.getRecord(ctx, req.args.Prefix, req.identifier)
	if err != nil {
		return err
	}
	node, err := s.newRecordNode(rec, req.args.Prefix)
	if err != nil {
		return err
	}
	env.GetRecord = &getRecordNode{Record: node}
	return nil
}

func (s *Server) handleListMetadataFormats(ctx context.Context, env *envelope, req *request) error {
	formats, err := s.pager.listMetadataFormats(ctx, req.identifier)
	if err != nil {
		return err
	}
	node := &listMetadataFormatsNode{}
	for _, f := range formats {
		node.Formats = append(node.Formats, metadataFormatNode{
			MetadataPrefix:    f.Prefix,
			Schema:            f.Schema,
			MetadataNamespace: f.Namespace,
		})
	}
	env.ListMetadataFormats = node
	return nil
}

func (s *Server) handleListIdentifiers(ctx context.Context, env *envelope, req *request) error {
	args, cursor, err := req.listWindow()
	if err != nil {
		return err
	}
	headers, more, err := s.pager.listIdentifiers(ctx, args, cursor)
	if err != nil {
		return err
	}
	if err := s.checkFirstPage(req, len(headers)); err != nil {
		return err
	}
	node := &listIdentifiersNode{}
	for _, h := range headers {
		node.Headers = append(node.Headers, newHeaderNode(h))
	}
	if more {
		node.ResumptionToken = newTokenNode(encodeToken(args, cursor+len(headers)))
	}
	env.ListIdentifiers = node
	return nil
}

func (s *Server) handleListRecords(ctx context.Context, env *envelope, req *request) error {
	args, cursor, err := req.listWindow()
	if err != nil {
		return err
	}
	records, more, err := s.pager.listRecords(ctx, args, cursor)
	if err != nil {
		return err
	}
	if err := s.checkFirstPage(req, len(records)); err != nil {
		return err
	}
	node := &listRecordsNode{}
	for _, rec := range records {
		recNode, err := s.newRecordNode(rec, args.Prefix)
		if err != nil {
			return err
		}
		node.Records = append(node.Records, recNode)
	}
	if more {
		node.ResumptionToken = newTokenNode(encodeToken(args, cursor+len(records)))
	}
	env.ListRecords = node
	return nil
}

func (s *Server) handleListSets(ctx context.Context, env *envelope, req *request) error {
	_, cursor, err := req.listWindow()
	if err != nil {
		return err
	}
	sets, more, err := s.pager.listSets(ctx, cursor)
	if err != nil {
		return err
	}
	node := &listSetsNode{}
	for _, set := range sets {
		node.Sets = append(node.Sets, newSetNode(set))
	}
	if more {
		node.ResumptionToken = newTokenNode(encodeToken(oaipmh.ListArgs{}, cursor+len(sets)))
	}
	env.ListSets = node
	return nil
}

// handleGetMetadata answers the extension verb: the response body is the
// record's bare metadata fragment, not an OAI-PMH envelope.
func (s *Server) handleGetMetadata(ctx context.Context, req *request) ([]byte, error) {
	rec, err := s.pager.getRecord(ctx, req.args.Prefix, req.identifier)
	if err != nil {
		return nil, err
	}
	if rec.Header.Deleted || rec.Metadata == nil {
		return nil, oaipmh.NewError(oaipmh.CodeCannotDisseminateFormat,
			"no metadata available for %s", req.identifier)
	}
	body, err := s.registry.Write(req.args.Prefix, rec.Metadata)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// checkFirstPage implements the empty-result policy: an empty first page of
// ListRecords or ListIdentifiers is the protocol condition noRecordsMatch.
// Later pages, reached by token, are never empty under a well-formed token.
func (s *Server) checkFirstPage(req *request, n int) error {
	if n == 0 && req.token == "" {
		return oaipmh.NewError(oaipmh.CodeNoRecordsMatch,
			"The combination of the values of the from, until, set and metadataPrefix arguments results in an empty list.")
	}
	return nil
}

// newRecordNode renders one record. Deleted records carry no metadata
// regardless of what the backend returned; live records are serialized by
// the registry writer for the requested prefix.
func (s *Server) newRecordNode(rec oaipmh.Record, prefix string) (recordNode, error) {
	node := recordNode{Header: newHeaderNode(rec.Header)}
	if rec.Header.Deleted {
		return node, nil
	}
	if rec.Metadata != nil {
		body, err := s.registry.Write(prefix, rec.Metadata)
		if err != nil {
			return recordNode{}, err
		}
		node.Metadata = &rawNode{XML: body}
	}
	if rec.About != "" {
		node.About = &rawNode{XML: []byte(rec.About)}
	}
	return node, nil
}
