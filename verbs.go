// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package oaipmh

import "sort"

// Verb is the named operation carried in the verb request parameter.
type Verb string

// The six protocol verbs, plus the non-standard GetMetadata extension that
// returns a record's bare metadata without the protocol envelope.
const (
	VerbGetRecord           Verb = "GetRecord"
	VerbGetMetadata         Verb = "GetMetadata"
	VerbIdentify            Verb = "Identify"
	VerbListIdentifiers     Verb = "ListIdentifiers"
	VerbListMetadataFormats Verb = "ListMetadataFormats"
	VerbListRecords         Verb = "ListRecords"
	VerbListSets            Verb = "ListSets"
)

// ArgKind classifies an argument within a verb's schema.
type ArgKind int

const (
	// ArgRequired arguments must be present, unless the verb's exclusive
	// argument is used instead.
	ArgRequired ArgKind = iota + 1
	// ArgOptional arguments may be present.
	ArgOptional
	// ArgExclusive arguments must appear alone. A verb has at most one.
	ArgExclusive
	// ArgLocal arguments are consumed locally before validation and never
	// travel on the wire.
	ArgLocal
)

// ArgumentSpec is a verb's argument schema, mapping wire argument names to
// their kind.
type ArgumentSpec map[string]ArgKind

// Specs are the plain per-verb schemas, used by the client where the
// iterator supplies resumption tokens itself.
var Specs = map[Verb]ArgumentSpec{
	VerbGetRecord: {
		"identifier":     ArgRequired,
		"metadataPrefix": ArgRequired,
	},
	VerbGetMetadata: {
		"identifier":     ArgRequired,
		"metadataPrefix": ArgRequired,
	},
	VerbIdentify: {},
	VerbListIdentifiers: {
		"from":           ArgOptional,
		"until":          ArgOptional,
		"metadataPrefix": ArgRequired,
		"set":            ArgOptional,
	},
	VerbListMetadataFormats: {
		"identifier": ArgOptional,
	},
	VerbListRecords: {
		"from":           ArgOptional,
		"until":          ArgOptional,
		"set":            ArgOptional,
		"metadataPrefix": ArgRequired,
	},
	VerbListSets: {},
}

// ResumptionSpecs are the server-side schemas: the three list verbs
// additionally accept a resumptionToken as their exclusive argument.
var ResumptionSpecs = map[Verb]ArgumentSpec{
	VerbGetRecord:           Specs[VerbGetRecord],
	VerbGetMetadata:         Specs[VerbGetMetadata],
	VerbIdentify:            Specs[VerbIdentify],
	VerbListMetadataFormats: Specs[VerbListMetadataFormats],
	VerbListIdentifiers: {
		"from":            ArgOptional,
		"until":           ArgOptional,
		"metadataPrefix":  ArgRequired,
		"set":             ArgOptional,
		"resumptionToken": ArgExclusive,
	},
	VerbListRecords: {
		"from":            ArgOptional,
		"until":           ArgOptional,
		"set":             ArgOptional,
		"metadataPrefix":  ArgRequired,
		"resumptionToken": ArgExclusive,
	},
	VerbListSets: {
		"resumptionToken": ArgExclusive,
	},
}

// ValidateArguments checks args against spec and returns the local
// arguments it filtered out. Arguments with empty values count as absent.
// Any violation is reported as a badArgument protocol error: an unknown
// argument, the exclusive argument combined with any other argument, or
// a missing required argument.
func ValidateArguments(spec ArgumentSpec, args map[string]string) (map[string]string, error) {
	exclusive := ""
	for name, kind := range spec {
		if kind == ArgExclusive {
			exclusive = name
		}
	}

	locals := map[string]string{}
	present := make([]string, 0, len(args))
	for name, value := range args {
		if value == "" {
			continue
		}
		if spec[name] == ArgLocal {
			locals[name] = value
			continue
		}
		present = append(present, name)
	}
	sort.Strings(present)

	for _, name := range present {
		if _, ok := spec[name]; !ok {
			return nil, NewError(CodeBadArgument, "Unknown argument: %s", name)
		}
	}

	hasExclusive := false
	for _, name := range present {
		if name == exclusive && exclusive != "" {
			hasExclusive = true
		}
	}
	if hasExclusive {
		if len(present) > 1 {
			return nil, NewError(CodeBadArgument,
				"Exclusive argument %s is used but other arguments found.", exclusive)
		}
		return locals, nil
	}

	required := make([]string, 0, len(spec))
	for name, kind := range spec {
		if kind == ArgRequired {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	for _, name := range required {
		found := false
		for _, p := range present {
			if p == name {
				found = true
				break
			}
		}
		if !found {
			return nil, NewError(CodeBadArgument, "Argument required but not found: %s", name)
		}
	}
	return locals, nil
}
