// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metadata implements the pluggable format codec layer: a registry
// that maps metadata prefixes to readers, which turn XML subtrees into
// field maps, and writers, which serialize field maps back to XML.
//
// Readers are usually declarative: [NewFieldReader] builds one from a map
// of field names to XPath expressions. [DublinCoreReader] and
// [DublinCoreWriter] cover the oai_dc format every repository must serve.
package metadata

import (
	"fmt"

	"github.com/antchfx/xmlquery"

	"github.com/openharvest/oaipmh"
)

// Reader turns the XML subtree rooted at a <metadata> element into a field
// map.
type Reader interface {
	// ReadMetadata extracts the fields of one record's metadata element.
	ReadMetadata(el *xmlquery.Node) (*oaipmh.Metadata, error)
}

// ReaderFunc adapts a function to the [Reader] interface.
type ReaderFunc func(el *xmlquery.Node) (*oaipmh.Metadata, error)

// ReadMetadata implements [Reader].
func (f ReaderFunc) ReadMetadata(el *xmlquery.Node) (*oaipmh.Metadata, error) {
	return f(el)
}

// Writer serializes a field map into the XML fragment a server places under
// a record's <metadata> element.
type Writer interface {
	// WriteMetadata returns the serialized metadata subtree.
	WriteMetadata(md *oaipmh.Metadata) ([]byte, error)
}

// WriterFunc adapts a function to the [Writer] interface.
type WriterFunc func(md *oaipmh.Metadata) ([]byte, error)

// WriteMetadata implements [Writer].
func (f WriterFunc) WriteMetadata(md *oaipmh.Metadata) ([]byte, error) {
	return f(md)
}

// Registry maps metadata prefixes to their reader and writer. A prefix has
// at most one of each, and either may be absent. Populate the registry
// during startup; afterwards it is safe for concurrent readers.
type Registry struct {
	readers map[string]Reader
	writers map[string]Writer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: map[string]Reader{},
		writers: map[string]Writer{},
	}
}

// DefaultRegistry is the process-wide registry used by clients and servers
// built without an explicit one. The oai_dc format is pre-registered;
// register additional formats before first use.
var DefaultRegistry = NewRegistry()

// RegisterReader binds prefix to reader, replacing any previous binding.
func (r *Registry) RegisterReader(prefix string, reader Reader) {
	r.readers[prefix] = reader
}

// RegisterWriter binds prefix to writer, replacing any previous binding.
func (r *Registry) RegisterWriter(prefix string, writer Writer) {
	r.writers[prefix] = writer
}

// HasReader reports whether prefix has a reader.
func (r *Registry) HasReader(prefix string) bool {
	_, ok := r.readers[prefix]
	return ok
}

// HasWriter reports whether prefix has a writer.
func (r *Registry) HasWriter(prefix string) bool {
	_, ok := r.writers[prefix]
	return ok
}

// Read extracts a field map from el using the reader bound to prefix. An
// unregistered prefix is a plain error: harvesting a format without a
// reader is a caller bug, not a protocol condition.
func (r *Registry) Read(prefix string, el *xmlquery.Node) (*oaipmh.Metadata, error) {
	reader, ok := r.readers[prefix]
	if !ok {
		return nil, fmt.Errorf("no metadata reader registered for prefix %q", prefix)
	}
	return reader.ReadMetadata(el)
}

// Write serializes md using the writer bound to prefix. An unregistered
// prefix yields a cannotDisseminateFormat protocol error, which a server
// renders on the wire as-is.
func (r *Registry) Write(prefix string, md *oaipmh.Metadata) ([]byte, error) {
	writer, ok := r.writers[prefix]
	if !ok {
		return nil, oaipmh.NewError(oaipmh.CodeCannotDisseminateFormat,
			"no metadata writer registered for prefix %s", prefix)
	}
	return writer.WriteMetadata(md)
}
