// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openharvest/oaipmh"
	"github.com/openharvest/oaipmh/internal/testrepo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testClock pins responseDate so documents compare byte for byte.
func testClock() time.Time { return time.Date(2006, 5, 4, 3, 2, 1, 0, time.UTC) }

func query(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}

func parseDoc(t *testing.T, body []byte) *xmlquery.Node {
	t.Helper()
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	require.NoError(t, err)
	return doc
}

// handleOK runs one request that must not produce any protocol error.
func handleOK(t *testing.T, s *Server, args url.Values) []byte {
	t.Helper()
	body, perrs, err := s.Handle(testContext(t), args)
	require.NoError(t, err)
	require.Empty(t, perrs)
	return body
}

// handleErr runs one request that must produce exactly one protocol error
// and returns the rendered document alongside it.
func handleErr(t *testing.T, s *Server, args url.Values) ([]byte, *oaipmh.Error) {
	t.Helper()
	body, perrs, err := s.Handle(testContext(t), args)
	require.NoError(t, err)
	require.Len(t, perrs, 1)
	return body, perrs[0]
}

func TestHandleBadVerb(t *testing.T) {
	s := New(testrepo.NewCorpus(3), WithClock(testClock))

	tests := []struct {
		name    string
		args    url.Values
		message string
	}{
		{name: "unknown verb", args: query("verb", "Frotz"),
			message: "Illegal verb: Frotz"},
		{name: "wrong case", args: query("verb", "getRecord"),
			message: "Illegal verb: getRecord"},
		{name: "missing verb", args: url.Values{},
			message: "Required verb argument not found."},
		{name: "empty verb", args: query("verb", ""),
			message: "Required verb argument not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, perr := handleErr(t, s, tt.args)
			require.Equal(t, oaipmh.CodeBadVerb, perr.Code)
			require.Equal(t, tt.message, perr.Message)

			doc := parseDoc(t, body)
			node := xmlquery.FindOne(doc, "//error")
			require.NotNil(t, node)
			require.Equal(t, "badVerb", node.SelectAttr("code"))
			require.Equal(t, tt.message, node.InnerText())
			// The offending arguments are not echoed back.
			require.Contains(t, string(body), "<request>http://repository.test/oai</request>")
		})
	}
}

func TestHandleBadArgument(t *testing.T) {
	s := New(testrepo.NewCorpus(3), WithClock(testClock))

	tests := []struct {
		name    string
		args    url.Values
		message string
	}{
		{name: "missing required argument",
			args:    query("verb", "ListRecords"),
			message: "Argument required but not found: metadataPrefix"},
		{name: "unknown argument",
			args:    query("verb", "Identify", "foo", "bar"),
			message: "Unknown argument: foo"},
		{name: "token mixed with other arguments",
			args:    query("verb", "ListRecords", "resumptionToken", "x", "metadataPrefix", "oai_dc"),
			message: "Exclusive argument resumptionToken is used but other arguments found."},
		{name: "get record without identifier",
			args:    query("verb", "GetRecord", "metadataPrefix", "oai_dc"),
			message: "Argument required but not found: identifier"},
		{name: "illegal from",
			args:    query("verb", "ListRecords", "metadataPrefix", "oai_dc", "from", "2004-99-01"),
			message: "The value '2004-99-01' of the argument 'from' is not valid."},
		{name: "illegal until",
			args:    query("verb", "ListRecords", "metadataPrefix", "oai_dc", "until", "next tuesday"),
			message: "The value 'next tuesday' of the argument 'until' is not valid."},
		{name: "mixed granularities",
			args: query("verb", "ListRecords", "metadataPrefix", "oai_dc",
				"from", "2004-01-01", "until", "2004-07-01T00:00:00Z"),
			message: "The request has different granularities for the from and until parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, perr := handleErr(t, s, tt.args)
			require.Equal(t, oaipmh.CodeBadArgument, perr.Code)
			require.Equal(t, tt.message, perr.Message)

			doc := parseDoc(t, body)
			node := xmlquery.FindOne(doc, "//error")
			require.NotNil(t, node)
			require.Equal(t, "badArgument", node.SelectAttr("code"))
			require.Equal(t, tt.message, node.InnerText())
			require.Contains(t, string(body), "<request>http://repository.test/oai</request>")
		})
	}
}

func TestHandleIdentify(t *testing.T) {
	s := New(testrepo.NewCorpus(4), WithClock(testClock))
	body := handleOK(t, s, query("verb", "Identify"))

	want := xml.Header +
		`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"` +
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"` +
		` xsi:schemaLocation="http://www.openarchives.org/OAI/2.0/ http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd">` +
		`<responseDate>2006-05-04T03:02:01Z</responseDate>` +
		`<request verb="Identify">http://repository.test/oai</request>` +
		`<Identify>` +
		`<repositoryName>Test Repository</repositoryName>` +
		`<baseURL>http://repository.test/oai</baseURL>` +
		`<protocolVersion>2.0</protocolVersion>` +
		`<adminEmail>admin@repository.test</adminEmail>` +
		`<earliestDatestamp>2004-01-01T00:00:00Z</earliestDatestamp>` +
		`<deletedRecord>transient</deletedRecord>` +
		`<granularity>YYYY-MM-DDThh:mm:ssZ</granularity>` +
		`<description>` +
		`<oai-identifier xmlns="http://www.openarchives.org/OAI/2.0/oai-identifier">` +
		`<scheme>oai</scheme><repositoryIdentifier>repository.test</repositoryIdentifier>` +
		`<delimiter>:</delimiter><sampleIdentifier>oai:repository.test:0</sampleIdentifier>` +
		`</oai-identifier>` +
		`</description>` +
		`</Identify>` +
		`</OAI-PMH>`
	require.Equal(t, want, string(body))
}

// record2DC is the oai_dc payload the registry writer produces for corpus
// record "2".
const record2DC = `<oai_dc:dc` +
	` xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/"` +
	` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
	` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"` +
	` xsi:schemaLocation="http://purl.org/dc/elements/1.1/ http://www.openarchives.org/OAI/2.0/oai_dc.xsd">` +
	`<dc:title>Test record 2</dc:title>` +
	`<dc:creator>Author 2</dc:creator>` +
	`<dc:subject>testing</dc:subject>` +
	`<dc:subject>corpus:even</dc:subject>` +
	`</oai_dc:dc>`

func TestHandleGetRecord(t *testing.T) {
	s := New(testrepo.NewCorpus(4), WithClock(testClock))
	body := handleOK(t, s, query("verb", "GetRecord", "identifier", "2", "metadataPrefix", "oai_dc"))

	require.Contains(t, string(body),
		`<request verb="GetRecord" identifier="2" metadataPrefix="oai_dc">http://repository.test/oai</request>`)
	require.Contains(t, string(body),
		`<GetRecord><record><header>`+
			`<identifier>2</identifier>`+
			`<datestamp>2004-03-03T02:00:00Z</datestamp>`+
			`<setSpec>corpus</setSpec><setSpec>corpus:even</setSpec>`+
			`</header><metadata>`+record2DC+`</metadata></record></GetRecord>`)
}

func TestHandleGetRecordDeleted(t *testing.T) {
	repo := testrepo.NewCorpus(4)
	repo.MarkDeleted("1")
	s := New(repo, WithClock(testClock))

	body := handleOK(t, s, query("verb", "GetRecord", "identifier", "1", "metadataPrefix", "oai_dc"))
	require.Contains(t, string(body),
		`<GetRecord><record><header status="deleted">`+
			`<identifier>1</identifier>`+
			`<datestamp>2004-02-02T01:00:00Z</datestamp>`+
			`<setSpec>corpus</setSpec><setSpec>corpus:odd</setSpec>`+
			`</header></record></GetRecord>`)
	require.NotContains(t, string(body), "<metadata>")
}

func TestHandleGetRecordErrors(t *testing.T) {
	s := New(testrepo.NewCorpus(4), WithClock(testClock))

	t.Run("unknown identifier", func(t *testing.T) {
		body, perr := handleErr(t, s, query("verb", "GetRecord", "identifier", "99", "metadataPrefix", "oai_dc"))
		require.Equal(t, oaipmh.CodeIDDoesNotExist, perr.Code)
		require.Equal(t, "unknown identifier 99", perr.Message)
		// Arguments stay echoed: only badVerb and badArgument suppress them.
		require.Contains(t, string(body),
			`<request verb="GetRecord" identifier="99" metadataPrefix="oai_dc">http://repository.test/oai</request>`)
	})

	t.Run("unsupported prefix", func(t *testing.T) {
		_, perr := handleErr(t, s, query("verb", "GetRecord", "identifier", "2", "metadataPrefix", "marcxml"))
		require.Equal(t, oaipmh.CodeCannotDisseminateFormat, perr.Code)
	})
}

func TestHandleListIdentifiersPaging(t *testing.T) {
	repo := testrepo.NewCorpus(100)
	servers := map[string]*Server{
		"stateless": New(repo, WithClock(testClock)),
		"batching":  NewBatching(testrepo.NewBatching(repo), WithClock(testClock)),
	}
	for name, s := range servers {
		t.Run(name, func(t *testing.T) {
			var got []string
			args := query("verb", "ListIdentifiers", "metadataPrefix", "oai_dc")
			pages := 0
			for {
				doc := parseDoc(t, handleOK(t, s, args))
				headers := xmlquery.Find(doc, "//ListIdentifiers/header/identifier")
				pages++
				for _, h := range headers {
					got = append(got, h.InnerText())
				}
				token := xmlquery.FindOne(doc, "//resumptionToken")
				if token == nil {
					break
				}
				require.NotEmpty(t, token.InnerText())
				require.Len(t, headers, 10, "every page before the last is full")
				args = query("verb", "ListIdentifiers", "resumptionToken", token.InnerText())
			}
			require.Equal(t, 10, pages)

			want := make([]string, 100)
			for i := range want {
				want[i] = strconv.Itoa(i)
			}
			require.Empty(t, cmp.Diff(want, got))
		})
	}
}

// collectList follows the token chain of a list verb to exhaustion and
// returns the text of every node matched by itemPath.
func collectList(t *testing.T, s *Server, args url.Values, itemPath string) []string {
	t.Helper()
	verb := args.Get("verb")
	var items []string
	for {
		doc := parseDoc(t, handleOK(t, s, args))
		for _, node := range xmlquery.Find(doc, itemPath) {
			items = append(items, node.InnerText())
		}
		token := xmlquery.FindOne(doc, "//resumptionToken")
		if token == nil || token.InnerText() == "" {
			return items
		}
		args = query("verb", verb, "resumptionToken", token.InnerText())
	}
}

func TestHandleListRecordsWindow(t *testing.T) {
	s := New(testrepo.NewCorpus(100), WithClock(testClock))

	tests := []struct {
		name  string
		from  string
		until string
		want  int
	}{
		{name: "day granularity", from: "2004-01-01", until: "2004-07-01", want: 52},
		{name: "second granularity", from: "2004-01-01T00:00:00Z", until: "2004-07-01T23:59:59Z", want: 52},
		{name: "from only", from: "2004-07-02", want: 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := query("verb", "ListRecords", "metadataPrefix", "oai_dc", "from", tt.from)
			if tt.until != "" {
				args.Set("until", tt.until)
			}
			stamps := collectList(t, s, args, "//ListRecords/record/header/datestamp")
			require.Len(t, stamps, tt.want)

			lo, _, err := oaipmh.ParseDatestamp(tt.from)
			require.NoError(t, err)
			for _, stamp := range stamps {
				ts, _, err := oaipmh.ParseDatestamp(stamp)
				require.NoError(t, err)
				require.False(t, ts.Before(lo), "datestamp %s below the window", stamp)
				if tt.until != "" {
					hi, _, err := oaipmh.ParseDatestampInclusive(tt.until)
					require.NoError(t, err)
					require.False(t, ts.After(hi), "datestamp %s above the window", stamp)
				}
			}
		})
	}
}

func TestHandleListRecordsWindowEcho(t *testing.T) {
	s := New(testrepo.NewCorpus(100), WithClock(testClock))

	body := handleOK(t, s, query("verb", "ListRecords", "metadataPrefix", "oai_dc",
		"from", "2004-01-01", "until", "2004-07-01"))
	require.Contains(t, string(body),
		`<request verb="ListRecords" metadataPrefix="oai_dc" from="2004-01-01" until="2004-07-01">http://repository.test/oai</request>`)

	doc := parseDoc(t, body)
	token := xmlquery.FindOne(doc, "//resumptionToken")
	require.NotNil(t, token)

	// The continuation echoes the token, not the original filters.
	body = handleOK(t, s, query("verb", "ListRecords", "resumptionToken", token.InnerText()))
	require.Contains(t, string(body),
		`<request verb="ListRecords" resumptionToken="`+token.InnerText()+`">http://repository.test/oai</request>`)
}

func TestHandleListRecordsSetFilter(t *testing.T) {
	s := New(testrepo.NewCorpus(100), WithClock(testClock))

	even := collectList(t, s, query("verb", "ListRecords", "metadataPrefix", "oai_dc", "set", "corpus:even"),
		"//ListRecords/record/header/identifier")
	require.Len(t, even, 50)
	for _, id := range even {
		n, err := strconv.Atoi(id)
		require.NoError(t, err)
		require.Zero(t, n%2, "identifier %s in the even set", id)
	}

	all := collectList(t, s, query("verb", "ListRecords", "metadataPrefix", "oai_dc", "set", "corpus"),
		"//ListRecords/record/header/identifier")
	require.Len(t, all, 100)
}

func TestHandleListRecordsDeleted(t *testing.T) {
	repo := testrepo.NewCorpus(12)
	repo.MarkDeleted("0", "2", "4", "6", "8", "10")
	s := New(repo, WithClock(testClock), WithBatchSize(20))

	doc := parseDoc(t, handleOK(t, s, query("verb", "ListRecords", "metadataPrefix", "oai_dc")))
	records := xmlquery.Find(doc, "//ListRecords/record")
	require.Len(t, records, 12)

	deleted := 0
	for _, rec := range records {
		header := rec.SelectElement("header")
		require.NotNil(t, header)
		metadata := rec.SelectElement("metadata")
		if header.SelectAttr("status") == "deleted" {
			deleted++
			require.Nil(t, metadata, "deleted record %s carries metadata", header.InnerText())
		} else {
			require.NotNil(t, metadata)
		}
	}
	require.Equal(t, 6, deleted)
}

func TestHandleNoRecordsMatch(t *testing.T) {
	s := New(testrepo.NewCorpus(100), WithClock(testClock))

	for _, verb := range []string{"ListRecords", "ListIdentifiers"} {
		t.Run(verb, func(t *testing.T) {
			body, perr := handleErr(t, s, query("verb", verb, "metadataPrefix", "oai_dc",
				"from", "2003-01-01", "until", "2003-12-31"))
			require.Equal(t, oaipmh.CodeNoRecordsMatch, perr.Code)
			require.Equal(t,
				"The combination of the values of the from, until, set and metadataPrefix arguments results in an empty list.",
				perr.Message)
			// Not an argument fault, so the request keeps its echo.
			require.Contains(t, string(body),
				`<request verb="`+verb+`" metadataPrefix="oai_dc" from="2003-01-01" until="2003-12-31">`)
		})
	}
}

func TestHandleBadResumptionToken(t *testing.T) {
	s := New(testrepo.NewCorpus(10), WithClock(testClock))

	body, perr := handleErr(t, s, query("verb", "ListRecords", "resumptionToken", "foobar"))
	require.Equal(t, oaipmh.CodeBadResumptionToken, perr.Code)
	require.Equal(t, "Unable to decode resumption token: foobar", perr.Message)

	doc := parseDoc(t, body)
	node := xmlquery.FindOne(doc, "//error")
	require.NotNil(t, node)
	require.Equal(t, "badResumptionToken", node.SelectAttr("code"))
	require.Contains(t, string(body),
		`<request verb="ListRecords" resumptionToken="foobar">http://repository.test/oai</request>`)
}

func TestHandleListMetadataFormats(t *testing.T) {
	s := New(testrepo.NewCorpus(4), WithClock(testClock))

	t.Run("repository wide", func(t *testing.T) {
		body := handleOK(t, s, query("verb", "ListMetadataFormats"))
		require.Contains(t, string(body),
			`<ListMetadataFormats><metadataFormat>`+
				`<metadataPrefix>oai_dc</metadataPrefix>`+
				`<schema>http://www.openarchives.org/OAI/2.0/oai_dc.xsd</schema>`+
				`<metadataNamespace>http://www.openarchives.org/OAI/2.0/oai_dc/</metadataNamespace>`+
				`</metadataFormat></ListMetadataFormats>`)
	})

	t.Run("per item", func(t *testing.T) {
		body := handleOK(t, s, query("verb", "ListMetadataFormats", "identifier", "2"))
		require.Contains(t, string(body), `<metadataPrefix>oai_dc</metadataPrefix>`)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, perr := handleErr(t, s, query("verb", "ListMetadataFormats", "identifier", "99"))
		require.Equal(t, oaipmh.CodeIDDoesNotExist, perr.Code)
	})
}

func TestHandleListSets(t *testing.T) {
	s := New(testrepo.NewCorpus(4), WithClock(testClock), WithBatchSize(2))

	doc := parseDoc(t, handleOK(t, s, query("verb", "ListSets")))
	specs := xmlquery.Find(doc, "//ListSets/set/setSpec")
	require.Len(t, specs, 2)
	require.Equal(t, "corpus", specs[0].InnerText())
	require.Equal(t, "corpus:even", specs[1].InnerText())

	token := xmlquery.FindOne(doc, "//resumptionToken")
	require.NotNil(t, token)
	require.Equal(t, "cursor%3D2", token.InnerText())

	doc = parseDoc(t, handleOK(t, s, query("verb", "ListSets", "resumptionToken", token.InnerText())))
	specs = xmlquery.Find(doc, "//ListSets/set/setSpec")
	require.Len(t, specs, 1)
	require.Equal(t, "corpus:odd", specs[0].InnerText())
	require.Nil(t, xmlquery.FindOne(doc, "//resumptionToken"))
}

func TestHandleListSetsDisabled(t *testing.T) {
	repo := testrepo.NewCorpus(4)
	repo.DisableSets()
	s := New(repo, WithClock(testClock))

	_, perr := handleErr(t, s, query("verb", "ListSets"))
	require.Equal(t, oaipmh.CodeNoSetHierarchy, perr.Code)
	require.Equal(t, "This repository does not support sets.", perr.Message)
}

func TestHandleGetMetadata(t *testing.T) {
	repo := testrepo.NewCorpus(4)
	repo.MarkDeleted("1")

	t.Run("disabled by default", func(t *testing.T) {
		s := New(repo, WithClock(testClock))
		body, perr := handleErr(t, s, query("verb", "GetMetadata", "identifier", "2", "metadataPrefix", "oai_dc"))
		require.Equal(t, oaipmh.CodeBadVerb, perr.Code)
		require.Equal(t, "Illegal verb: GetMetadata", perr.Message)
		require.Contains(t, string(body), `<error code="badVerb">Illegal verb: GetMetadata</error>`)
	})

	t.Run("bare fragment", func(t *testing.T) {
		s := New(repo, WithClock(testClock), WithGetMetadata())
		body := handleOK(t, s, query("verb", "GetMetadata", "identifier", "2", "metadataPrefix", "oai_dc"))
		require.Equal(t, xml.Header+record2DC, string(body))
		require.NotContains(t, string(body), "<OAI-PMH")
	})

	t.Run("deleted record has no metadata", func(t *testing.T) {
		s := New(repo, WithClock(testClock), WithGetMetadata())
		_, perr := handleErr(t, s, query("verb", "GetMetadata", "identifier", "1", "metadataPrefix", "oai_dc"))
		require.Equal(t, oaipmh.CodeCannotDisseminateFormat, perr.Code)
		require.Equal(t, "no metadata available for 1", perr.Message)
	})

	t.Run("argument schema applies", func(t *testing.T) {
		s := New(repo, WithClock(testClock), WithGetMetadata())
		_, perr := handleErr(t, s, query("verb", "GetMetadata", "metadataPrefix", "oai_dc"))
		require.Equal(t, oaipmh.CodeBadArgument, perr.Code)
		require.Equal(t, "Argument required but not found: identifier", perr.Message)
	})
}

// Error documents carry exactly one error element, no verb payload, and the
// declarations that make them schema-valid.
func TestHandleErrorEnvelopeShape(t *testing.T) {
	s := New(testrepo.NewCorpus(10), WithClock(testClock))

	tests := []url.Values{
		{},
		query("verb", "Frotz"),
		query("verb", "Identify", "foo", "bar"),
		query("verb", "ListRecords", "resumptionToken", "foobar"),
		query("verb", "GetRecord", "identifier", "99", "metadataPrefix", "oai_dc"),
		query("verb", "ListRecords", "metadataPrefix", "oai_dc", "from", "2003-01-01", "until", "2003-12-31"),
	}
	for _, args := range tests {
		t.Run(args.Encode(), func(t *testing.T) {
			body, _ := handleErr(t, s, args)
			require.True(t, strings.HasPrefix(string(body), xml.Header+
				`<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"`+
				` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"`+
				` xsi:schemaLocation="http://www.openarchives.org/OAI/2.0/ http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd">`),
				"unexpected document prefix: %s", body)

			doc := parseDoc(t, body)
			require.Len(t, xmlquery.Find(doc, "//error"), 1)
			require.Equal(t, "2006-05-04T03:02:01Z", xmlquery.FindOne(doc, "//responseDate").InnerText())
			for _, verb := range []string{"GetRecord", "Identify", "ListIdentifiers", "ListMetadataFormats", "ListRecords", "ListSets"} {
				require.Nil(t, xmlquery.FindOne(doc, "//"+verb), "error document carries a %s payload", verb)
			}
		})
	}
}

func TestRootNamespaceOption(t *testing.T) {
	s := New(testrepo.NewCorpus(3), WithClock(testClock),
		WithNamespace("toolkit", "http://example.org/toolkit"))
	body := handleOK(t, s, query("verb", "Identify"))
	require.Contains(t, string(body), ` xmlns:toolkit="http://example.org/toolkit">`)
}

// errRepo fails every operation, standing in for an unreachable backend.
type errRepo struct{}

var errBackend = errors.New("backend unavailable")

func (errRepo) Identify(context.Context) (oaipmh.Identify, error) {
	return oaipmh.Identify{}, errBackend
}

func (errRepo) GetRecord(context.Context, string, string) (oaipmh.Record, error) {
	return oaipmh.Record{}, errBackend
}

func (errRepo) ListIdentifiers(context.Context, oaipmh.ListArgs) ([]oaipmh.Header, error) {
	return nil, errBackend
}

func (errRepo) ListMetadataFormats(context.Context, string) ([]oaipmh.MetadataFormat, error) {
	return nil, errBackend
}

func (errRepo) ListRecords(context.Context, oaipmh.ListArgs) ([]oaipmh.Record, error) {
	return nil, errBackend
}

func (errRepo) ListSets(context.Context) ([]oaipmh.Set, error) {
	return nil, errBackend
}

func TestHandleBackendFailure(t *testing.T) {
	s := New(errRepo{}, WithClock(testClock))
	body, perrs, err := s.Handle(testContext(t), query("verb", "Identify"))
	require.ErrorIs(t, err, errBackend)
	require.Nil(t, body)
	require.Empty(t, perrs)
}

func TestServeHTTP(t *testing.T) {
	s := New(testrepo.NewCorpus(4), WithClock(testClock))

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oai?verb=Identify", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/xml; charset=utf-8", rec.Header().Get("Content-Type"))
		require.Contains(t, rec.Body.String(), "<Identify>")
	})

	t.Run("post form", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/oai", strings.NewReader("verb=Identify"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "<Identify>")
	})

	t.Run("protocol errors still answer 200", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oai?verb=Frotz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `<error code="badVerb">Illegal verb: Frotz</error>`)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/oai", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Equal(t, "GET, POST", rec.Header().Get("Allow"))
	})

	t.Run("backend failure answers 500", func(t *testing.T) {
		broken := New(errRepo{}, WithClock(testClock))
		rec := httptest.NewRecorder()
		broken.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oai?verb=Identify", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
