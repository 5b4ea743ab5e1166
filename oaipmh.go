// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package oaipmh implements the pieces shared by both sides of the OAI-PMH
// 2.0 protocol: the record data model, the datestamp codec, the protocol
// error taxonomy, the per-verb argument schemas, and the repository
// contracts a backend implements.
//
// The client and server subpackages build on these types. A harvesting
// client lives in [github.com/openharvest/oaipmh/client], a repository
// server in [github.com/openharvest/oaipmh/server], and the metadata format
// registry in [github.com/openharvest/oaipmh/metadata].
package oaipmh

import (
	"sort"
	"time"
)

// Header is the identity and status tuple of a record, independent of its
// metadata content. Headers are constructed per response and never mutated.
type Header struct {
	// Identifier is the repository-unique record identifier.
	Identifier string
	// Datestamp is the record's last-modified instant. The protocol carries
	// timezone-naive UTC stamps, so the location is always [time.UTC].
	Datestamp time.Time
	// SetSpecs lists the sets the record belongs to, in repository order.
	SetSpecs []string
	// Deleted reports whether the record is a tombstone entry.
	Deleted bool
}

// Metadata is the field map produced by a format reader. Each field holds
// either a single string or an ordered list of strings, depending on the
// field kind the reader declared for it.
type Metadata struct {
	fields map[string]any
}

// NewMetadata returns an empty field map.
func NewMetadata() *Metadata {
	return &Metadata{fields: map[string]any{}}
}

// SetValue stores a single-valued field, replacing any previous value.
func (m *Metadata) SetValue(name, value string) {
	m.fields[name] = value
}

// SetValues stores a list-valued field, replacing any previous value.
func (m *Metadata) SetValues(name string, values []string) {
	m.fields[name] = values
}

// Fields returns the field names in sorted order.
func (m *Metadata) Fields() []string {
	names := make([]string, 0, len(m.fields))
	for name := range m.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value returns a single-valued field, or the first entry of a list-valued
// one. ok is false when the field is absent or an empty list.
func (m *Metadata) Value(name string) (value string, ok bool) {
	switch v := m.fields[name].(type) {
	case string:
		return v, true
	case []string:
		if len(v) == 0 {
			return "", false
		}
		return v[0], true
	}
	return "", false
}

// Values returns a list-valued field, or a single-valued one wrapped in a
// one-element slice. Absent fields return nil.
func (m *Metadata) Values(name string) []string {
	switch v := m.fields[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}

// Record pairs a header with its disseminated metadata.
//
// Metadata is nil exactly when the header is marked deleted; the server
// enforces this when rendering and the client preserves it when parsing.
type Record struct {
	// Header identifies the record.
	Header Header
	// Metadata is the disseminated content, nil for deleted records.
	Metadata *Metadata
	// About is an optional raw XML fragment with provenance statements.
	About string
}

// Deleted-record support levels a repository reports through Identify.
const (
	DeletedRecordNo         = "no"
	DeletedRecordTransient  = "transient"
	DeletedRecordPersistent = "persistent"
)

// Identify is the repository descriptor returned by the Identify verb.
type Identify struct {
	// RepositoryName is the human-readable repository name.
	RepositoryName string
	// BaseURL is the repository's harvesting endpoint.
	BaseURL string
	// ProtocolVersion is the protocol version, "2.0" for this package.
	ProtocolVersion string
	// AdminEmails lists the administrator contact addresses.
	AdminEmails []string
	// EarliestDatestamp is a lower bound on all record datestamps.
	EarliestDatestamp time.Time
	// DeletedRecord is the deleted-record support level, one of the
	// DeletedRecord constants.
	DeletedRecord string
	// Granularity is the finest datestamp precision the repository supports.
	Granularity Granularity
	// Compression lists the supported compression schemes.
	Compression []string
	// Descriptions holds optional raw XML description fragments.
	Descriptions []string
}

// MetadataFormat names one format a repository can disseminate.
type MetadataFormat struct {
	// Prefix is the short format name carried in metadataPrefix arguments.
	Prefix string
	// Schema is the URL of the format's XML schema.
	Schema string
	// Namespace is the format's XML namespace URI.
	Namespace string
}

// Set is a named grouping of records. A record may belong to zero or more
// sets.
type Set struct {
	// Spec is the colon-separated set identifier.
	Spec string
	// Name is the human-readable set name.
	Name string
	// Description is an optional raw XML description fragment.
	Description string
}
