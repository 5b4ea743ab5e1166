// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package version carries the build version the CLIs report.
package version

// Version is stamped by the Go linker in release builds:
//
//	-ldflags="-X github.com/openharvest/oaipmh/internal/version.Version=v1.2.3"
//
// Plain `go build` binaries report "dev".
var Version = "dev"
