// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metadata

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/oaipmh"
)

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	require.False(t, registry.HasReader("oai_dc"))
	require.False(t, registry.HasWriter("oai_dc"))

	registry.RegisterReader("oai_dc", DublinCoreReader())
	registry.RegisterWriter("oai_dc", DublinCoreWriter())
	require.True(t, registry.HasReader("oai_dc"))
	require.True(t, registry.HasWriter("oai_dc"))
}

func TestRegistryReadUnregisteredPrefix(t *testing.T) {
	doc, err := xmlquery.Parse(strings.NewReader("<metadata/>"))
	require.NoError(t, err)

	_, err = NewRegistry().Read("marcxml", doc)
	require.ErrorContains(t, err, `no metadata reader registered for prefix "marcxml"`)
	// Missing readers are caller bugs, not protocol conditions.
	_, ok := oaipmh.AsError(err)
	require.False(t, ok)
}

func TestRegistryWriteUnregisteredPrefix(t *testing.T) {
	_, err := NewRegistry().Write("marcxml", oaipmh.NewMetadata())
	require.ErrorIs(t, err, oaipmh.ErrCannotDisseminateFormat)
}

func TestRegistryFuncAdapters(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterReader("fixed", ReaderFunc(func(*xmlquery.Node) (*oaipmh.Metadata, error) {
		md := oaipmh.NewMetadata()
		md.SetValue("answer", "42")
		return md, nil
	}))
	registry.RegisterWriter("fixed", WriterFunc(func(md *oaipmh.Metadata) ([]byte, error) {
		v, _ := md.Value("answer")
		return []byte("<answer>" + v + "</answer>"), nil
	}))

	doc, err := xmlquery.Parse(strings.NewReader("<metadata/>"))
	require.NoError(t, err)

	md, err := registry.Read("fixed", doc)
	require.NoError(t, err)
	out, err := registry.Write("fixed", md)
	require.NoError(t, err)
	require.Equal(t, "<answer>42</answer>", string(out))
}
