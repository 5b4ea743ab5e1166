// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package testrepo provides an in-memory repository with fabricated records
// for exercising servers, clients and resumption adapters in tests.
package testrepo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/openharvest/oaipmh"
	"github.com/openharvest/oaipmh/metadata"
)

// Repo is an in-memory [oaipmh.Repository]. The zero value is unusable;
// construct one with [NewCorpus].
type Repo struct {
	baseURL     string
	earliest    time.Time
	sets        []oaipmh.Set
	setsEnabled bool
	records     []oaipmh.Record
}

// NewCorpus fabricates a repository of n records. Identifiers are the
// decimal strings "0".."n-1". Datestamps spread across 2004: record i is
// stamped month i%12+1, day i%28+1, hour i%24. Even records belong to the
// set corpus:even, odd ones to corpus:odd, and every record to corpus.
// Each record carries Dublin Core metadata.
func NewCorpus(n int) *Repo {
	r := &Repo{
		baseURL:     "http://repository.test/oai",
		setsEnabled: true,
		sets: []oaipmh.Set{
			{Spec: "corpus", Name: "Test corpus"},
			{Spec: "corpus:even", Name: "Even-numbered records"},
			{Spec: "corpus:odd", Name: "Odd-numbered records"},
		},
	}
	for i := 0; i < n; i++ {
		identifier := strconv.Itoa(i)
		stamp := time.Date(2004, time.Month(i%12+1), i%28+1, i%24, 0, 0, 0, time.UTC)
		parity := "corpus:odd"
		if i%2 == 0 {
			parity = "corpus:even"
		}
		md := oaipmh.NewMetadata()
		md.SetValues("title", []string{"Test record " + identifier})
		md.SetValues("creator", []string{"Author " + strconv.Itoa(i%7)})
		md.SetValues("subject", []string{"testing", parity})
		r.records = append(r.records, oaipmh.Record{
			Header: oaipmh.Header{
				Identifier: identifier,
				Datestamp:  stamp,
				SetSpecs:   []string{"corpus", parity},
			},
			Metadata: md,
		})
		if r.earliest.IsZero() || stamp.Before(r.earliest) {
			r.earliest = stamp
		}
	}
	return r
}

// SetBaseURL overrides the base URL reported by Identify, so tests can
// point it at an httptest server.
func (r *Repo) SetBaseURL(u string) { r.baseURL = u }

// DisableSets makes ListSets signal noSetHierarchy.
func (r *Repo) DisableSets() { r.setsEnabled = false }

// MarkDeleted turns the named records into tombstones: the deleted flag is
// set and the metadata dropped.
func (r *Repo) MarkDeleted(identifiers ...string) {
	for _, id := range identifiers {
		for i := range r.records {
			if r.records[i].Header.Identifier == id {
				r.records[i].Header.Deleted = true
				r.records[i].Metadata = nil
			}
		}
	}
}

// Identify implements [oaipmh.Repository].
func (r *Repo) Identify(_ context.Context) (oaipmh.Identify, error) {
	return oaipmh.Identify{
		RepositoryName:    "Test Repository",
		BaseURL:           r.baseURL,
		ProtocolVersion:   "2.0",
		AdminEmails:       []string{"admin@repository.test"},
		EarliestDatestamp: r.earliest,
		DeletedRecord:     oaipmh.DeletedRecordTransient,
		Granularity:       oaipmh.GranularitySecond,
		Compression:       []string{"identity"},
		Descriptions: []string{
			`<oai-identifier xmlns="http://www.openarchives.org/OAI/2.0/oai-identifier">` +
				`<scheme>oai</scheme><repositoryIdentifier>repository.test</repositoryIdentifier>` +
				`<delimiter>:</delimiter><sampleIdentifier>oai:repository.test:0</sampleIdentifier>` +
				`</oai-identifier>`,
		},
	}, nil
}

// GetRecord implements [oaipmh.Repository].
func (r *Repo) GetRecord(_ context.Context, prefix, identifier string) (oaipmh.Record, error) {
	if err := checkPrefix(prefix); err != nil {
		return oaipmh.Record{}, err
	}
	for _, rec := range r.records {
		if rec.Header.Identifier == identifier {
			return rec, nil
		}
	}
	return oaipmh.Record{}, oaipmh.NewError(oaipmh.CodeIDDoesNotExist,
		"unknown identifier %s", identifier)
}

// ListIdentifiers implements [oaipmh.Repository].
func (r *Repo) ListIdentifiers(_ context.Context, args oaipmh.ListArgs) ([]oaipmh.Header, error) {
	records, err := r.match(args)
	if err != nil {
		return nil, err
	}
	headers := make([]oaipmh.Header, 0, len(records))
	for _, rec := range records {
		headers = append(headers, rec.Header)
	}
	return headers, nil
}

// ListMetadataFormats implements [oaipmh.Repository].
func (r *Repo) ListMetadataFormats(_ context.Context, identifier string) ([]oaipmh.MetadataFormat, error) {
	if identifier != "" {
		found := false
		for _, rec := range r.records {
			if rec.Header.Identifier == identifier {
				found = true
				break
			}
		}
		if !found {
			return nil, oaipmh.NewError(oaipmh.CodeIDDoesNotExist,
				"unknown identifier %s", identifier)
		}
	}
	return []oaipmh.MetadataFormat{metadata.DublinCoreFormat}, nil
}

// ListRecords implements [oaipmh.Repository].
func (r *Repo) ListRecords(_ context.Context, args oaipmh.ListArgs) ([]oaipmh.Record, error) {
	return r.match(args)
}

// ListSets implements [oaipmh.Repository].
func (r *Repo) ListSets(_ context.Context) ([]oaipmh.Set, error) {
	if !r.setsEnabled {
		return nil, oaipmh.NewError(oaipmh.CodeNoSetHierarchy,
			"This repository does not support sets.")
	}
	return r.sets, nil
}

// match applies the prefix, set and datestamp-window filters in repository
// order. The window is inclusive at both ends.
func (r *Repo) match(args oaipmh.ListArgs) ([]oaipmh.Record, error) {
	if err := checkPrefix(args.Prefix); err != nil {
		return nil, err
	}
	var out []oaipmh.Record
	for _, rec := range r.records {
		if args.Set != "" && !inSet(rec.Header.SetSpecs, args.Set) {
			continue
		}
		if args.From != nil && rec.Header.Datestamp.Before(*args.From) {
			continue
		}
		if args.Until != nil && rec.Header.Datestamp.After(*args.Until) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func checkPrefix(prefix string) error {
	if prefix != "oai_dc" {
		return oaipmh.NewError(oaipmh.CodeCannotDisseminateFormat,
			"unsupported metadata prefix %s", prefix)
	}
	return nil
}

// inSet reports whether any of the record's set specs is the requested set
// or a descendant of it.
func inSet(specs []string, set string) bool {
	for _, s := range specs {
		if s == set || strings.HasPrefix(s, set+":") {
			return true
		}
	}
	return false
}

// Batching wraps a [Repo] behind the [oaipmh.BatchingRepository] contract,
// slicing the full result per (cursor, limit) window.
type Batching struct {
	*Repo
}

// NewBatching returns the batching view of repo.
func NewBatching(repo *Repo) *Batching {
	return &Batching{Repo: repo}
}

// ListIdentifiers implements [oaipmh.BatchingRepository].
func (b *Batching) ListIdentifiers(ctx context.Context, args oaipmh.ListArgs, cursor, limit int) ([]oaipmh.Header, error) {
	full, err := b.Repo.ListIdentifiers(ctx, args)
	if err != nil {
		return nil, err
	}
	return window(full, cursor, limit), nil
}

// ListRecords implements [oaipmh.BatchingRepository].
func (b *Batching) ListRecords(ctx context.Context, args oaipmh.ListArgs, cursor, limit int) ([]oaipmh.Record, error) {
	full, err := b.Repo.ListRecords(ctx, args)
	if err != nil {
		return nil, err
	}
	return window(full, cursor, limit), nil
}

// ListSets implements [oaipmh.BatchingRepository].
func (b *Batching) ListSets(ctx context.Context, cursor, limit int) ([]oaipmh.Set, error) {
	full, err := b.Repo.ListSets(ctx)
	if err != nil {
		return nil, err
	}
	return window(full, cursor, limit), nil
}

func window[T any](items []T, cursor, limit int) []T {
	if cursor >= len(items) {
		return nil
	}
	if end := cursor + limit; end < len(items) {
		return items[cursor:end]
	}
	return items[cursor:]
}
