// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package oaipmh

import (
	"context"
	"time"
)

// ListArgs narrows a list verb to one metadata format, an optional set, and
// an optional datestamp window. From and Until are nil when unbounded. By
// the time a repository sees Until it is already inclusive: a day-granular
// wire value has been resolved to the last second of that day.
type ListArgs struct {
	// Prefix is the metadata format to disseminate.
	Prefix string
	// Set restricts results to one set spec. Empty means no restriction.
	Set string
	// From is the inclusive lower datestamp bound.
	From *time.Time
	// Until is the inclusive upper datestamp bound.
	Until *time.Time
}

// Repository is the contract a non-paging backend implements. List results
// are returned whole and in a stable order; pagination is the resumption
// adapter's business.
//
// Backends signal protocol conditions by returning an [*Error], for example
// CodeIDDoesNotExist for an unknown identifier or CodeNoSetHierarchy when
// sets are unsupported. Any other error surfaces to the transport
// untranslated.
type Repository interface {
	// Identify describes the repository.
	Identify(ctx context.Context) (Identify, error)
	// GetRecord returns the record for identifier disseminated in the
	// format named by prefix.
	GetRecord(ctx context.Context, prefix, identifier string) (Record, error)
	// ListIdentifiers returns the headers matching args.
	ListIdentifiers(ctx context.Context, args ListArgs) ([]Header, error)
	// ListMetadataFormats returns the formats the repository disseminates,
	// or those available for one record when identifier is non-empty.
	ListMetadataFormats(ctx context.Context, identifier string) ([]MetadataFormat, error)
	// ListRecords returns the records matching args.
	ListRecords(ctx context.Context, args ListArgs) ([]Record, error)
	// ListSets returns the repository's set hierarchy.
	ListSets(ctx context.Context) ([]Set, error)
}

// BatchingRepository is the contract for backends that can page natively.
// List operations return the slice [cursor, cursor+limit) of the full
// result in stable order, or the shorter suffix when the result ends inside
// that window. Error conventions match [Repository].
type BatchingRepository interface {
	Identify(ctx context.Context) (Identify, error)
	GetRecord(ctx context.Context, prefix, identifier string) (Record, error)
	ListIdentifiers(ctx context.Context, args ListArgs, cursor, limit int) ([]Header, error)
	ListMetadataFormats(ctx context.Context, identifier string) ([]MetadataFormat, error)
	ListRecords(ctx context.Context, args ListArgs, cursor, limit int) ([]Record, error)
	ListSets(ctx context.Context, cursor, limit int) ([]Set, error)
}
