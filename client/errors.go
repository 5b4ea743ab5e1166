// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package client

import "fmt"

// TransportError reports a terminal non-success HTTP status, one outside
// both the 2xx range and the retry policy's transient set.
type TransportError struct {
	// Status is the HTTP status code the repository answered with.
	Status int
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Status)
}

// RetriesExceededError reports that a transiently failing request used up
// the whole retry budget without a successful response.
type RetriesExceededError struct {
	// Status is the last transient status observed.
	Status int
	// Retries is the number of retries performed after the first attempt.
	Retries int
}

// Error implements error.
func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("gave up after %d retries, last status %d", e.Retries, e.Status)
}
