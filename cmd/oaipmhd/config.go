// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML repository definition the daemon serves.
type Config struct {
	// Name is the human-readable repository name reported by Identify.
	Name string `yaml:"name"`
	// BaseURL is the public harvesting endpoint. When empty it is derived
	// from the listen address.
	BaseURL string `yaml:"baseURL"`
	// AdminEmails lists the administrator contacts. At least one is
	// required.
	AdminEmails []string `yaml:"adminEmails"`
	// DeletedRecord is the deleted-record support level: no, transient or
	// persistent. Defaults to transient.
	DeletedRecord string `yaml:"deletedRecord"`
	// Granularity is the datestamp precision reported by Identify,
	// YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ. Defaults to the second form.
	Granularity string `yaml:"granularity"`
	// BatchSize is the number of items per list page. Zero keeps the
	// server default.
	BatchSize int `yaml:"batchSize"`
	// GetMetadata enables the non-standard GetMetadata verb.
	GetMetadata bool `yaml:"getMetadata"`
	// Sets declares the set hierarchy. An empty list disables sets.
	Sets []SetConfig `yaml:"sets"`
	// Records holds the repository content.
	Records []RecordConfig `yaml:"records"`
}

// SetConfig declares one set of the hierarchy.
type SetConfig struct {
	Spec string `yaml:"spec"`
	Name string `yaml:"name"`
	// Description is an optional raw XML fragment.
	Description string `yaml:"description"`
}

// RecordConfig defines one record.
type RecordConfig struct {
	Identifier string `yaml:"identifier"`
	// Datestamp is the last-modified stamp, YYYY-MM-DD or
	// YYYY-MM-DDThh:mm:ssZ.
	Datestamp string `yaml:"datestamp"`
	// Sets lists the set specs the record belongs to. Every spec must be
	// declared in the top-level sets list.
	Sets []string `yaml:"sets"`
	// Deleted marks the record as a tombstone; its fields are ignored.
	Deleted bool `yaml:"deleted"`
	// Fields is the Dublin Core field map, field name to value list.
	Fields map[string][]string `yaml:"fields"`
}

// loadConfig reads and unmarshals the repository definition at path.
func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}
