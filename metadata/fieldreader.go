// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metadata

import (
	"fmt"
	"strconv"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/openharvest/oaipmh"
)

// FieldKind selects how a field's XPath result is converted. The bytes and
// text kinds are distinct on the wire-format level of the original protocol
// tooling; in Go both produce a string.
type FieldKind string

const (
	// FieldBytes extracts the string value of the expression.
	FieldBytes FieldKind = "bytes"
	// FieldBytesList extracts each node of the result set as a string.
	FieldBytesList FieldKind = "bytesList"
	// FieldText extracts the string value of the expression.
	FieldText FieldKind = "text"
	// FieldTextList extracts each node of the result set as a string.
	FieldTextList FieldKind = "textList"
)

// Field declares how one named field is pulled out of a metadata subtree.
type Field struct {
	// Kind is the extraction mode.
	Kind FieldKind
	// XPath is evaluated relative to the metadata element. List kinds need
	// a node-set expression; single kinds also accept string(), number()
	// and boolean() expressions.
	XPath string
}

type compiledField struct {
	kind FieldKind
	expr *xpath.Expr
}

// FieldReader is a declarative [Reader] built from a field map and the
// namespace bindings its XPath expressions use. A compiled FieldReader is
// safe for concurrent use.
type FieldReader struct {
	fields map[string]compiledField
}

// NewFieldReader compiles the field map against the prefix → URI namespace
// bindings. An unknown field kind or a malformed expression fails here, at
// construction, never at read time.
func NewFieldReader(fields map[string]Field, namespaces map[string]string) (*FieldReader, error) {
	compiled := make(map[string]compiledField, len(fields))
	for name, field := range fields {
		switch field.Kind {
		case FieldBytes, FieldBytesList, FieldText, FieldTextList:
		default:
			return nil, fmt.Errorf("field %s: unknown field kind: %s", name, field.Kind)
		}
		expr, err := xpath.CompileWithNS(field.XPath, namespaces)
		if err != nil {
			return nil, fmt.Errorf("field %s: cannot compile xpath %q: %w", name, field.XPath, err)
		}
		compiled[name] = compiledField{kind: field.Kind, expr: expr}
	}
	return &FieldReader{fields: compiled}, nil
}

// ReadMetadata implements [Reader]. Every declared field is present in the
// result; fields whose expression matched nothing hold an empty list or
// empty string.
func (r *FieldReader) ReadMetadata(el *xmlquery.Node) (*oaipmh.Metadata, error) {
	md := oaipmh.NewMetadata()
	for name, field := range r.fields {
		nav := xmlquery.CreateXPathNavigator(el)
		switch field.kind {
		case FieldBytes, FieldText:
			md.SetValue(name, evalString(field.expr.Evaluate(nav)))
		case FieldBytesList, FieldTextList:
			values := []string{}
			switch v := field.expr.Evaluate(nav).(type) {
			case *xpath.NodeIterator:
				for v.MoveNext() {
					values = append(values, v.Current().Value())
				}
			case string:
				// A scalar expression under a list kind degrades to a
				// one-element list.
				if v != "" {
					values = append(values, v)
				}
			}
			md.SetValues(name, values)
		}
	}
	return md, nil
}

func evalString(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case *xpath.NodeIterator:
		// String value of a node set: the first node's value, or empty.
		if v.MoveNext() {
			return v.Current().Value()
		}
		return ""
	}
	return ""
}
