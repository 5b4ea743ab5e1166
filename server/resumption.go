// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"net/url"
	"strconv"

	"github.com/openharvest/oaipmh"
)

// pager produces one page of a list verb. cursor is the absolute offset of
// the requested page; more reports whether items remain past it.
type pager interface {
	identify(ctx context.Context) (oaipmh.Identify, error)
	getRecord(ctx context.Context, prefix, identifier string) (oaipmh.Record, error)
	listMetadataFormats(ctx context.Context, identifier string) ([]oaipmh.MetadataFormat, error)
	listIdentifiers(ctx context.Context, args oaipmh.ListArgs, cursor int) ([]oaipmh.Header, bool, error)
	listRecords(ctx context.Context, args oaipmh.ListArgs, cursor int) ([]oaipmh.Record, bool, error)
	listSets(ctx context.Context, cursor int) ([]oaipmh.Set, bool, error)
}

func page[T any](items []T, cursor, size int) ([]T, bool) {
	if cursor >= len(items) {
		return nil, false
	}
	if end := cursor + size; end < len(items) {
		return items[cursor:end], true
	}
	return items[cursor:], false
}

// statelessPager adapts a non-paging repository: every page re-runs the
// full backend query and slices the page out of it. That keeps the token
// free of server state and is correct for stable result sets, but costs
// O(result size) per page.
type statelessPager struct {
	repo  oaipmh.Repository
	batch int
}

func (p *statelessPager) identify(ctx context.Context) (oaipmh.Identify, error) {
	return p.repo.Identify(ctx)
}

func (p *statelessPager) getRecord(ctx context.Context, prefix, identifier string) (oaipmh.Record, error) {
	return p.repo.GetRecord(ctx, prefix, identifier)
}

func (p *statelessPager) listMetadataFormats(ctx context.Context, identifier string) ([]oaipmh.MetadataFormat, error) {
	return p.repo.ListMetadataFormats(ctx, identifier)
}

func (p *statelessPager) listIdentifiers(ctx context.Context, args oaipmh.ListArgs, cursor int) ([]oaipmh.Header, bool, error) {
	full, err := p.repo.ListIdentifiers(ctx, args)
	if err != nil {
		return nil, false, err
	}
	out, more := page(full, cursor, p.batch)
	return out, more, nil
}

func (p *statelessPager) listRecords(ctx context.Context, args oaipmh.ListArgs, cursor int) ([]oaipmh.Record, bool, error) {
	full, err := p.repo.ListRecords(ctx, args)
	if err != nil {
		return nil, false, err
	}
	out, more := page(full, cursor, p.batch)
	return out, more, nil
}

func (p *statelessPager) listSets(ctx context.Context, cursor int) ([]oaipmh.Set, bool, error) {
	full, err := p.repo.ListSets(ctx)
	if err != nil {
		return nil, false, err
	}
	out, more := page(full, cursor, p.batch)
	return out, more, nil
}

// batchingPager pushes cursor and batch size down to a backend with native
// paging. It requests one item beyond the page to learn whether the stream
// continues, then drops it.
type batchingPager struct {
	repo  oaipmh.BatchingRepository
	batch int
}

func (p *batchingPager) identify(ctx context.Context) (oaipmh.Identify, error) {
	return p.repo.Identify(ctx)
}

func (p *batchingPager) getRecord(ctx context.Context, prefix, identifier string) (oaipmh.Record, error) {
	return p.repo.GetRecord(ctx, prefix, identifier)
}

func (p *batchingPager) listMetadataFormats(ctx context.Context, identifier string) ([]oaipmh.MetadataFormat, error) {
	return p.repo.ListMetadataFormats(ctx, identifier)
}

func (p *batchingPager) listIdentifiers(ctx context.Context, args oaipmh.ListArgs, cursor int) ([]oaipmh.Header, bool, error) {
	items, err := p.repo.ListIdentifiers(ctx, args, cursor, p.batch+1)
	return trim(items, p.batch, err)
}

func (p *batchingPager) listRecords(ctx context.Context, args oaipmh.ListArgs, cursor int) ([]oaipmh.Record, bool, error) {
	items, err := p.repo.ListRecords(ctx, args, cursor, p.batch+1)
	return trim(items, p.batch, err)
}

func (p *batchingPager) listSets(ctx context.Context, cursor int) ([]oaipmh.Set, bool, error) {
	items, err := p.repo.ListSets(ctx, cursor, p.batch+1)
	return trim(items, p.batch, err)
}

func trim[T any](items []T, batch int, err error) ([]T, bool, error) {
	if err != nil {
		return nil, false, err
	}
	if len(items) > batch {
		return items[:batch], true, nil
	}
	return items, false, nil
}

// encodeToken serializes the list arguments plus the next cursor into an
// opaque continuation token: a key-sorted URL encoding wrapped in one more
// layer of percent-encoding so the token stays inert in query strings
// regardless of transport quoting. Datestamps are carried at second
// granularity, which preserves the inclusive until bound.
func encodeToken(args oaipmh.ListArgs, cursor int) string {
	values := url.Values{}
	if args.Prefix != "" {
		values.Set("metadataPrefix", args.Prefix)
	}
	if args.Set != "" {
		values.Set("set", args.Set)
	}
	if args.From != nil {
		values.Set("from", oaipmh.FormatDatestamp(*args.From, oaipmh.GranularitySecond))
	}
	if args.Until != nil {
		values.Set("until", oaipmh.FormatDatestamp(*args.Until, oaipmh.GranularitySecond))
	}
	values.Set("cursor", strconv.Itoa(cursor))
	return url.QueryEscape(values.Encode())
}

// decodeToken is the inverse of [encodeToken]. Every failure mode,
// including a missing or negative cursor and unknown keys, reports
// badResumptionToken carrying the original token text.
func decodeToken(token string) (oaipmh.ListArgs, int, error) {
	bad := func() (oaipmh.ListArgs, int, error) {
		return oaipmh.ListArgs{}, 0, oaipmh.NewError(oaipmh.CodeBadResumptionToken,
			"Unable to decode resumption token: %s", token)
	}

	unescaped, err := url.QueryUnescape(token)
	if err != nil {
		return bad()
	}
	values, err := url.ParseQuery(unescaped)
	if err != nil {
		return bad()
	}

	var args oaipmh.ListArgs
	cursor := -1
	for key := range values {
		value := values.Get(key)
		switch key {
		case "metadataPrefix":
			args.Prefix = value
		case "set":
			args.Set = value
		case "from":
			t, _, err := oaipmh.ParseDatestamp(value)
			if err != nil {
				return bad()
			}
			args.From = &t
		case "until":
			t, _, err := oaipmh.ParseDatestamp(value)
			if err != nil {
				return bad()
			}
			args.Until = &t
		case "cursor":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return bad()
			}
			cursor = n
		default:
			return bad()
		}
	}
	if cursor < 0 {
		return bad()
	}
	return args, cursor, nil
}
