// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openharvest/oaipmh"
	"github.com/openharvest/oaipmh/metadata"
)

// staticRepository is the in-memory [oaipmh.Repository] built from a
// [Config]. Records are served in definition order; pagination is the
// server's resumption adapter's business.
type staticRepository struct {
	identify oaipmh.Identify
	sets     []oaipmh.Set
	records  []oaipmh.Record
}

// newStaticRepository validates cfg and builds the repository from it.
func newStaticRepository(cfg *Config) (*staticRepository, error) {
	if cfg.Name == "" {
		return nil, errors.New("repository name is required")
	}
	if len(cfg.AdminEmails) == 0 {
		return nil, errors.New("at least one admin email is required")
	}
	deletedRecord := cfg.DeletedRecord
	if deletedRecord == "" {
		deletedRecord = oaipmh.DeletedRecordTransient
	}
	switch deletedRecord {
	case oaipmh.DeletedRecordNo, oaipmh.DeletedRecordTransient, oaipmh.DeletedRecordPersistent:
	default:
		return nil, fmt.Errorf("unknown deletedRecord policy %q", deletedRecord)
	}
	granularity := oaipmh.GranularitySecond
	if cfg.Granularity != "" {
		g, err := oaipmh.ParseGranularity(cfg.Granularity)
		if err != nil {
			return nil, fmt.Errorf("invalid granularity: %w", err)
		}
		granularity = g
	}

	declared := make(map[string]bool, len(cfg.Sets))
	sets := make([]oaipmh.Set, 0, len(cfg.Sets))
	for _, s := range cfg.Sets {
		if s.Spec == "" || s.Name == "" {
			return nil, fmt.Errorf("set %q needs both spec and name", s.Spec)
		}
		if declared[s.Spec] {
			return nil, fmt.Errorf("duplicate set spec %q", s.Spec)
		}
		declared[s.Spec] = true
		sets = append(sets, oaipmh.Set{Spec: s.Spec, Name: s.Name, Description: s.Description})
	}

	var (
		records  []oaipmh.Record
		seen     = make(map[string]bool, len(cfg.Records))
		earliest time.Time
	)
	for _, rc := range cfg.Records {
		if rc.Identifier == "" {
			return nil, errors.New("record without identifier")
		}
		if seen[rc.Identifier] {
			return nil, fmt.Errorf("duplicate record identifier %q", rc.Identifier)
		}
		seen[rc.Identifier] = true
		stamp, _, err := oaipmh.ParseDatestamp(rc.Datestamp)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rc.Identifier, err)
		}
		for _, spec := range rc.Sets {
			if !declared[spec] {
				return nil, fmt.Errorf("record %s references undeclared set %q", rc.Identifier, spec)
			}
		}
		rec := oaipmh.Record{Header: oaipmh.Header{
			Identifier: rc.Identifier,
			Datestamp:  stamp,
			SetSpecs:   rc.Sets,
			Deleted:    rc.Deleted,
		}}
		if !rc.Deleted {
			md := oaipmh.NewMetadata()
			for name, values := range rc.Fields {
				md.SetValues(name, values)
			}
			rec.Metadata = md
		}
		if earliest.IsZero() || stamp.Before(earliest) {
			earliest = stamp
		}
		records = append(records, rec)
	}
	if earliest.IsZero() {
		earliest = time.Unix(0, 0).UTC()
	}

	return &staticRepository{
		identify: oaipmh.Identify{
			RepositoryName:    cfg.Name,
			BaseURL:           cfg.BaseURL,
			ProtocolVersion:   "2.0",
			AdminEmails:       cfg.AdminEmails,
			EarliestDatestamp: earliest,
			DeletedRecord:     deletedRecord,
			Granularity:       granularity,
		},
		sets:    sets,
		records: records,
	}, nil
}

// Identify implements [oaipmh.Repository].
func (r *staticRepository) Identify(_ context.Context) (oaipmh.Identify, error) {
	return r.identify, nil
}

// GetRecord implements [oaipmh.Repository].
func (r *staticRepository) GetRecord(_ context.Context, prefix, identifier string) (oaipmh.Record, error) {
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
func (r *staticRepository) ListIdentifiers(_ context.Context, args oaipmh.ListArgs) ([]oaipmh.Header, error) {
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
func (r *staticRepository) ListMetadataFormats(_ context.Context, identifier string) ([]oaipmh.MetadataFormat, error) {
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
func (r *staticRepository) ListRecords(_ context.Context, args oaipmh.ListArgs) ([]oaipmh.Record, error) {
	return r.match(args)
}

// ListSets implements [oaipmh.Repository].
func (r *staticRepository) ListSets(_ context.Context) ([]oaipmh.Set, error) {
	if len(r.sets) == 0 {
		return nil, oaipmh.NewError(oaipmh.CodeNoSetHierarchy,
			"This repository does not support sets.")
	}
	return r.sets, nil
}

// match applies the prefix, set and datestamp-window filters in definition
// order. The window is inclusive at both ends, and a set matches its
// descendants.
func (r *staticRepository) match(args oaipmh.ListArgs) ([]oaipmh.Record, error) {
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

func inSet(specs []string, set string) bool {
	for _, s := range specs {
		if s == set || strings.HasPrefix(s, set+":") {
			return true
		}
	}
	return false
}
