// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openharvest/oaipmh"
)

const demoConfig = `name: Demo Repository
adminEmails:
  - admin@demo.test
batchSize: 2
sets:
  - spec: journals
    name: Journals
  - spec: journals:physics
    name: Physics journals
records:
  - identifier: rec-1
    datestamp: 2004-01-01T12:00:00Z
    sets: [journals]
    fields:
      title: [First]
      creator: [Someone]
  - identifier: rec-2
    datestamp: 2004-02-01
    sets: [journals, journals:physics]
    fields:
      title: [Second]
  - identifier: rec-3
    datestamp: 2004-03-01T00:00:00Z
    deleted: true
    fields:
      title: [Ghost]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func demoRepository(t *testing.T) *staticRepository {
	t.Helper()
	cfg, err := loadConfig(writeConfig(t, demoConfig))
	require.NoError(t, err)
	repo, err := newStaticRepository(cfg)
	require.NoError(t, err)
	return repo
}

func TestLoadConfig(t *testing.T) {
	t.Run("parses the demo definition", func(t *testing.T) {
		cfg, err := loadConfig(writeConfig(t, demoConfig))
		require.NoError(t, err)
		require.Equal(t, "Demo Repository", cfg.Name)
		require.Equal(t, []string{"admin@demo.test"}, cfg.AdminEmails)
		require.Equal(t, 2, cfg.BatchSize)
		require.Len(t, cfg.Sets, 2)
		require.Len(t, cfg.Records, 3)
		require.Equal(t, []string{"First"}, cfg.Records[0].Fields["title"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorContains(t, err, "cannot read config")
	})

	t.Run("broken yaml", func(t *testing.T) {
		_, err := loadConfig(writeConfig(t, "name: [unclosed"))
		require.ErrorContains(t, err, "cannot parse config")
	})
}

func TestNewStaticRepository(t *testing.T) {
	repo := demoRepository(t)

	id, err := repo.Identify(testContext(t))
	require.NoError(t, err)
	require.Equal(t, "Demo Repository", id.RepositoryName)
	require.Equal(t, "2.0", id.ProtocolVersion)
	require.Equal(t, oaipmh.DeletedRecordTransient, id.DeletedRecord, "policy defaults to transient")
	require.Equal(t, oaipmh.GranularitySecond, id.Granularity)
	require.Equal(t, time.Date(2004, 1, 1, 12, 0, 0, 0, time.UTC), id.EarliestDatestamp)

	// Day-granular stamps resolve to midnight.
	rec, err := repo.GetRecord(testContext(t), "oai_dc", "rec-2")
	require.NoError(t, err)
	require.Equal(t, time.Date(2004, 2, 1, 0, 0, 0, 0, time.UTC), rec.Header.Datestamp)

	// Tombstones drop their fields.
	rec, err = repo.GetRecord(testContext(t), "oai_dc", "rec-3")
	require.NoError(t, err)
	require.True(t, rec.Header.Deleted)
	require.Nil(t, rec.Metadata)
}

func TestNewStaticRepositoryRejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			Name:        "X",
			AdminEmails: []string{"a@b.test"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "missing name",
			mutate: func(c *Config) { c.Name = "" },
			errMsg: "repository name is required",
		},
		{
			name:   "missing admin email",
			mutate: func(c *Config) { c.AdminEmails = nil },
			errMsg: "at least one admin email is required",
		},
		{
			name:   "unknown deleted-record policy",
			mutate: func(c *Config) { c.DeletedRecord = "sometimes" },
			errMsg: `unknown deletedRecord policy "sometimes"`,
		},
		{
			name:   "unknown granularity",
			mutate: func(c *Config) { c.Granularity = "fortnightly" },
			errMsg: "invalid granularity",
		},
		{
			name:   "set without name",
			mutate: func(c *Config) { c.Sets = []SetConfig{{Spec: "journals"}} },
			errMsg: "needs both spec and name",
		},
		{
			name: "duplicate set spec",
			mutate: func(c *Config) {
				c.Sets = []SetConfig{{Spec: "journals", Name: "A"}, {Spec: "journals", Name: "B"}}
			},
			errMsg: `duplicate set spec "journals"`,
		},
		{
			name:   "record without identifier",
			mutate: func(c *Config) { c.Records = []RecordConfig{{Datestamp: "2004-01-01"}} },
			errMsg: "record without identifier",
		},
		{
			name: "duplicate record identifier",
			mutate: func(c *Config) {
				c.Records = []RecordConfig{
					{Identifier: "r", Datestamp: "2004-01-01"},
					{Identifier: "r", Datestamp: "2004-01-02"},
				}
			},
			errMsg: `duplicate record identifier "r"`,
		},
		{
			name:   "illegal datestamp",
			mutate: func(c *Config) { c.Records = []RecordConfig{{Identifier: "r", Datestamp: "yesterday"}} },
			errMsg: "record r",
		},
		{
			name: "undeclared set",
			mutate: func(c *Config) {
				c.Records = []RecordConfig{{Identifier: "r", Datestamp: "2004-01-01", Sets: []string{"ghost"}}}
			},
			errMsg: `record r references undeclared set "ghost"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			_, err := newStaticRepository(cfg)
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestStaticRepositoryQueries(t *testing.T) {
	repo := demoRepository(t)

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := repo.GetRecord(testContext(t), "oai_dc", "rec-99")
		require.ErrorIs(t, err, oaipmh.ErrIDDoesNotExist)
	})

	t.Run("unsupported prefix", func(t *testing.T) {
		_, err := repo.GetRecord(testContext(t), "marcxml", "rec-1")
		require.ErrorIs(t, err, oaipmh.ErrCannotDisseminateFormat)
		_, err = repo.ListRecords(testContext(t), oaipmh.ListArgs{Prefix: "marcxml"})
		require.ErrorIs(t, err, oaipmh.ErrCannotDisseminateFormat)
	})

	t.Run("set filter matches descendants", func(t *testing.T) {
		records, err := repo.ListRecords(testContext(t), oaipmh.ListArgs{Prefix: "oai_dc", Set: "journals"})
		require.NoError(t, err)
		require.Len(t, records, 2)

		records, err = repo.ListRecords(testContext(t), oaipmh.ListArgs{Prefix: "oai_dc", Set: "journals:physics"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, "rec-2", records[0].Header.Identifier)
	})

	t.Run("datestamp window", func(t *testing.T) {
		from := time.Date(2004, 1, 15, 0, 0, 0, 0, time.UTC)
		headers, err := repo.ListIdentifiers(testContext(t), oaipmh.ListArgs{Prefix: "oai_dc", From: &from})
		require.NoError(t, err)
		require.Len(t, headers, 2)
		require.Equal(t, "rec-2", headers[0].Identifier)
		require.Equal(t, "rec-3", headers[1].Identifier)
	})

	t.Run("formats", func(t *testing.T) {
		formats, err := repo.ListMetadataFormats(testContext(t), "")
		require.NoError(t, err)
		require.Len(t, formats, 1)
		require.Equal(t, "oai_dc", formats[0].Prefix)

		_, err = repo.ListMetadataFormats(testContext(t), "rec-99")
		require.ErrorIs(t, err, oaipmh.ErrIDDoesNotExist)
	})

	t.Run("sets", func(t *testing.T) {
		sets, err := repo.ListSets(testContext(t))
		require.NoError(t, err)
		require.Len(t, sets, 2)

		bare, err := newStaticRepository(&Config{Name: "X", AdminEmails: []string{"a@b.test"}})
		require.NoError(t, err)
		_, err = bare.ListSets(testContext(t))
		require.ErrorIs(t, err, oaipmh.ErrNoSetHierarchy)
	})
}
