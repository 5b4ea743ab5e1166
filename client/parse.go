// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package client

import (
	"errors"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/openharvest/oaipmh"
)

// namespaces binds the one prefix the envelope lookup paths use.
var namespaces = map[string]string{
	"oai": "http://www.openarchives.org/OAI/2.0/",
}

// Compiled lookup paths for the fixed response document shape. They are
// namespace-qualified so that look-alike element names inside metadata or
// description payloads cannot shadow envelope structure.
var (
	exprError       = mustCompile("/oai:OAI-PMH/oai:error")
	exprIdentify    = mustCompile("/oai:OAI-PMH/oai:Identify")
	exprGetRecord   = mustCompile("/oai:OAI-PMH/oai:GetRecord/oai:record")
	exprFormats     = mustCompile("/oai:OAI-PMH/oai:ListMetadataFormats/oai:metadataFormat")
	exprIdentifiers = mustCompile("/oai:OAI-PMH/oai:ListIdentifiers/oai:header")
	exprRecords     = mustCompile("/oai:OAI-PMH/oai:ListRecords/oai:record")
	exprSets        = mustCompile("/oai:OAI-PMH/oai:ListSets/oai:set")
	exprToken       = mustCompile("/oai:OAI-PMH/*/oai:resumptionToken")
)

func mustCompile(expr string) *xpath.Expr {
	compiled, err := xpath.CompileWithNS(expr, namespaces)
	if err != nil {
		panic(fmt.Sprintf("xpath %q: %v", expr, err))
	}
	return compiled
}

// protocolError maps an error envelope to the protocol taxonomy. Only the
// first error element is raised. An unrecognized code becomes an Unknown
// protocol error carrying both the code and the message.
func protocolError(doc *xmlquery.Node) error {
	node := xmlquery.QuerySelector(doc, exprError)
	if node == nil {
		return nil
	}
	code, known := oaipmh.ParseErrorCode(node.SelectAttr("code"))
	if !known {
		return oaipmh.NewError(oaipmh.CodeUnknown,
			"Unknown error code from server: %s, message: %s",
			node.SelectAttr("code"), node.InnerText())
	}
	return &oaipmh.Error{Code: code, Message: node.InnerText()}
}

// tokenText extracts the continuation token, empty when the element is
// absent or empty.
func tokenText(doc *xmlquery.Node) string {
	if node := xmlquery.QuerySelector(doc, exprToken); node != nil {
		return node.InnerText()
	}
	return ""
}

// elementText returns the text of the first child element with the given
// name, or empty when there is none.
func elementText(node *xmlquery.Node, name string) string {
	if el := node.SelectElement(name); el != nil {
		return el.InnerText()
	}
	return ""
}

func decodeHeader(node *xmlquery.Node) (oaipmh.Header, error) {
	h := oaipmh.Header{
		Identifier: elementText(node, "identifier"),
		Deleted:    node.SelectAttr("status") == "deleted",
	}
	stamp, _, err := oaipmh.ParseDatestamp(elementText(node, "datestamp"))
	if err != nil {
		return oaipmh.Header{}, err
	}
	h.Datestamp = stamp
	for _, spec := range node.SelectElements("setSpec") {
		h.SetSpecs = append(h.SetSpecs, spec.InnerText())
	}
	return h, nil
}

// decodeRecord builds a record from a <record> element. Metadata is decoded
// through the registry reader for prefix; deleted records keep it nil even
// if the repository serialized one anyway.
func (c *Client) decodeRecord(node *xmlquery.Node, prefix string) (oaipmh.Record, error) {
	headerNode := node.SelectElement("header")
	if headerNode == nil {
		return oaipmh.Record{}, &oaipmh.XMLSyntaxError{Err: errors.New("record lacks a header element")}
	}
	header, err := decodeHeader(headerNode)
	if err != nil {
		return oaipmh.Record{}, err
	}
	rec := oaipmh.Record{Header: header}
	if md := node.SelectElement("metadata"); md != nil && !header.Deleted {
		parsed, err := c.registry.Read(prefix, md)
		if err != nil {
			return oaipmh.Record{}, err
		}
		rec.Metadata = parsed
	}
	if about := node.SelectElement("about"); about != nil {
		rec.About = about.OutputXML(false)
	}
	return rec, nil
}

func decodeIdentify(doc *xmlquery.Node) (oaipmh.Identify, error) {
	node := xmlquery.QuerySelector(doc, exprIdentify)
	if node == nil {
		return oaipmh.Identify{}, &oaipmh.XMLSyntaxError{Err: errors.New("response lacks an Identify element")}
	}
	id := oaipmh.Identify{
		RepositoryName:  elementText(node, "repositoryName"),
		BaseURL:         elementText(node, "baseURL"),
		ProtocolVersion: elementText(node, "protocolVersion"),
		DeletedRecord:   elementText(node, "deletedRecord"),
	}
	if stamp := elementText(node, "earliestDatestamp"); stamp != "" {
		t, _, err := oaipmh.ParseDatestamp(stamp)
		if err != nil {
			return oaipmh.Identify{}, err
		}
		id.EarliestDatestamp = t
	}
	granularity, err := oaipmh.ParseGranularity(elementText(node, "granularity"))
	if err != nil {
		return oaipmh.Identify{}, err
	}
	id.Granularity = granularity
	for _, email := range node.SelectElements("adminEmail") {
		id.AdminEmails = append(id.AdminEmails, email.InnerText())
	}
	for _, comp := range node.SelectElements("compression") {
		id.Compression = append(id.Compression, comp.InnerText())
	}
	for _, desc := range node.SelectElements("description") {
		id.Descriptions = append(id.Descriptions, desc.OutputXML(false))
	}
	return id, nil
}

func decodeFormat(node *xmlquery.Node) oaipmh.MetadataFormat {
	return oaipmh.MetadataFormat{
		Prefix:    elementText(node, "metadataPrefix"),
		Schema:    elementText(node, "schema"),
		Namespace: elementText(node, "metadataNamespace"),
	}
}

func decodeSet(node *xmlquery.Node) oaipmh.Set {
	set := oaipmh.Set{
		Spec: elementText(node, "setSpec"),
		Name: elementText(node, "setName"),
	}
	if desc := node.SelectElement("setDescription"); desc != nil {
		set.Description = desc.OutputXML(false)
	}
	return set
}
