// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metadata

import (
	"bytes"
	"encoding/xml"

	"github.com/openharvest/oaipmh"
)

const (
	// NamespaceOAIDC is the oai_dc container namespace.
	NamespaceOAIDC = "http://www.openarchives.org/OAI/2.0/oai_dc/"
	// NamespaceDC is the Dublin Core element namespace.
	NamespaceDC = "http://purl.org/dc/elements/1.1/"
	// SchemaOAIDC is the XML schema URL for the oai_dc format.
	SchemaOAIDC = "http://www.openarchives.org/OAI/2.0/oai_dc.xsd"

	namespaceXSI = "http://www.w3.org/2001/XMLSchema-instance"
)

// DublinCoreElements are the fifteen Dublin Core element names, in the
// canonical order the writer emits them.
var DublinCoreElements = []string{
	"title", "creator", "subject", "description", "publisher",
	"contributor", "date", "type", "format", "identifier",
	"source", "language", "relation", "coverage", "rights",
}

// DublinCoreFormat describes the oai_dc format for ListMetadataFormats
// responses.
var DublinCoreFormat = oaipmh.MetadataFormat{
	Prefix:    "oai_dc",
	Schema:    SchemaOAIDC,
	Namespace: NamespaceOAIDC,
}

// Every repository must support oai_dc, so the default registry carries it
// from the start.
func init() {
	DefaultRegistry.RegisterReader(DublinCoreFormat.Prefix, DublinCoreReader())
	DefaultRegistry.RegisterWriter(DublinCoreFormat.Prefix, DublinCoreWriter())
}

// DublinCoreReader returns the standard oai_dc reader: each of the fifteen
// Dublin Core elements extracted as a textList.
func DublinCoreReader() *FieldReader {
	fields := make(map[string]Field, len(DublinCoreElements))
	for _, name := range DublinCoreElements {
		fields[name] = Field{Kind: FieldTextList, XPath: "oai_dc:dc/dc:" + name + "/text()"}
	}
	reader, err := NewFieldReader(fields, map[string]string{
		"oai_dc": NamespaceOAIDC,
		"dc":     NamespaceDC,
	})
	if err != nil {
		// The field map is static; compilation cannot fail.
		panic(err)
	}
	return reader
}

// DublinCoreWriter returns the standard oai_dc writer. It emits an
// <oai_dc:dc> element carrying the oai_dc schemaLocation and one child per
// non-empty field value, in canonical element order.
func DublinCoreWriter() Writer {
	return dublinCoreWriter{}
}

type dublinCoreWriter struct{}

// WriteMetadata implements [Writer].
func (dublinCoreWriter) WriteMetadata(md *oaipmh.Metadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	root := xml.StartElement{
		Name: xml.Name{Local: "oai_dc:dc"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:oai_dc"}, Value: NamespaceOAIDC},
			{Name: xml.Name{Local: "xmlns:dc"}, Value: NamespaceDC},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: namespaceXSI},
			{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: NamespaceDC + " " + SchemaOAIDC},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, name := range DublinCoreElements {
		for _, value := range md.Values(name) {
			if value == "" {
				continue
			}
			el := xml.StartElement{Name: xml.Name{Local: "dc:" + name}}
			if err := enc.EncodeToken(el); err != nil {
				return nil, err
			}
			if err := enc.EncodeToken(xml.CharData(value)); err != nil {
				return nil, err
			}
			if err := enc.EncodeToken(el.End()); err != nil {
				return nil, err
			}
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
