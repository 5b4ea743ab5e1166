// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"encoding/xml"
	"fmt"

	"github.com/openharvest/oaipmh"
)

const (
	namespaceOAI      = "http://www.openarchives.org/OAI/2.0/"
	namespaceXSI      = "http://www.w3.org/2001/XMLSchema-instance"
	oaiSchemaLocation = "http://www.openarchives.org/OAI/2.0/ http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd"

	protocolVersion = "2.0"
)

// envelope is the <OAI-PMH> response document. Exactly one of the verb
// fields is set on success; Errors is set instead on a protocol error.
type envelope struct {
	XMLName           xml.Name   `xml:"OAI-PMH"`
	XMLNS             string     `xml:"xmlns,attr"`
	XMLNSXSI          string     `xml:"xmlns:xsi,attr"`
	XSISchemaLocation string     `xml:"xsi:schemaLocation,attr"`
	ExtraNS           []xml.Attr `xml:",any,attr"`

	ResponseDate string       `xml:"responseDate"`
	Request      *requestNode `xml:"request"`
	Errors       []errorNode  `xml:"error,omitempty"`

	GetRecord           *getRecordNode           `xml:"GetRecord,omitempty"`
	Identify            *identifyNode            `xml:"Identify,omitempty"`
	ListIdentifiers     *listIdentifiersNode     `xml:"ListIdentifiers,omitempty"`
	ListMetadataFormats *listMetadataFormatsNode `xml:"ListMetadataFormats,omitempty"`
	ListRecords         *listRecordsNode         `xml:"ListRecords,omitempty"`
	ListSets            *listSetsNode            `xml:"ListSets,omitempty"`
}

// requestNode echoes the request arguments as attributes and carries the
// repository base URL as text.
type requestNode struct {
	URL string `xml:",chardata"`

	Verb            string `xml:"verb,attr,omitempty"`
	Identifier      string `xml:"identifier,attr,omitempty"`
	MetadataPrefix  string `xml:"metadataPrefix,attr,omitempty"`
	From            string `xml:"from,attr,omitempty"`
	Until           string `xml:"until,attr,omitempty"`
	Set             string `xml:"set,attr,omitempty"`
	ResumptionToken string `xml:"resumptionToken,attr,omitempty"`
}

type errorNode struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// rawNode carries a pre-serialized XML fragment verbatim, for metadata and
// description payloads the registry writers produce.
type rawNode struct {
	XML []byte `xml:",innerxml"`
}

type headerNode struct {
	Status     string   `xml:"status,attr,omitempty"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpec    []string `xml:"setSpec,omitempty"`
}

type recordNode struct {
	Header   headerNode `xml:"header"`
	Metadata *rawNode   `xml:"metadata,omitempty"`
	About    *rawNode   `xml:"about,omitempty"`
}

type getRecordNode struct {
	Record recordNode `xml:"record"`
}

type identifyNode struct {
	RepositoryName    string    `xml:"repositoryName"`
	BaseURL           string    `xml:"baseURL"`
	ProtocolVersion   string    `xml:"protocolVersion"`
	AdminEmail        []string  `xml:"adminEmail"`
	EarliestDatestamp string    `xml:"earliestDatestamp"`
	DeletedRecord     string    `xml:"deletedRecord"`
	Granularity       string    `xml:"granularity"`
	Compression       []string  `xml:"compression,omitempty"`
	Description       []rawNode `xml:"description,omitempty"`
}

type metadataFormatNode struct {
	MetadataPrefix    string `xml:"metadataPrefix"`
	Schema            string `xml:"schema"`
	MetadataNamespace string `xml:"metadataNamespace"`
}

type setNode struct {
	SetSpec        string   `xml:"setSpec"`
	SetName        string   `xml:"setName"`
	SetDescription *rawNode `xml:"setDescription,omitempty"`
}

type tokenNode struct {
	Value string `xml:",chardata"`
}

type listIdentifiersNode struct {
	Headers         []headerNode `xml:"header"`
	ResumptionToken *tokenNode   `xml:"resumptionToken,omitempty"`
}

type listMetadataFormatsNode struct {
	Formats []metadataFormatNode `xml:"metadataFormat"`
}

type listRecordsNode struct {
	Records         []recordNode `xml:"record"`
	ResumptionToken *tokenNode   `xml:"resumptionToken,omitempty"`
}

type listSetsNode struct {
	Sets            []setNode  `xml:"set"`
	ResumptionToken *tokenNode `xml:"resumptionToken,omitempty"`
}

func newHeaderNode(h oaipmh.Header) headerNode {
	node := headerNode{
		Identifier: h.Identifier,
		Datestamp:  oaipmh.FormatDatestamp(h.Datestamp, oaipmh.GranularitySecond),
		SetSpec:    h.SetSpecs,
	}
	if h.Deleted {
		node.Status = "deleted"
	}
	return node
}

func newIdentifyNode(id oaipmh.Identify) identifyNode {
	node := identifyNode{
		RepositoryName:    id.RepositoryName,
		BaseURL:           id.BaseURL,
		ProtocolVersion:   protocolVersion,
		AdminEmail:        id.AdminEmails,
		EarliestDatestamp: oaipmh.FormatDatestamp(id.EarliestDatestamp, oaipmh.GranularitySecond),
		DeletedRecord:     id.DeletedRecord,
		Granularity:       string(id.Granularity),
	}
	// The compression element is omitted when the repository supports
	// nothing beyond the implied identity scheme.
	if len(id.Compression) != 1 || id.Compression[0] != "identity" {
		node.Compression = id.Compression
	}
	for _, desc := range id.Descriptions {
		node.Description = append(node.Description, rawNode{XML: []byte(desc)})
	}
	return node
}

func newSetNode(s oaipmh.Set) setNode {
	node := setNode{SetSpec: s.Spec, SetName: s.Name}
	if s.Description != "" {
		node.SetDescription = &rawNode{XML: []byte(s.Description)}
	}
	return node
}

func newTokenNode(token string) *tokenNode {
	if token == "" {
		return nil
	}
	return &tokenNode{Value: token}
}

// marshal serializes the envelope with the XML declaration prepended.
func (e *envelope) marshal() ([]byte, error) {
	body, err := xml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal response envelope: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
