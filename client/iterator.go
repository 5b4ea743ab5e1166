// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package client

import "context"

// fetchFunc requests one batch of a list verb. An empty token requests the
// first batch; the returned token continues the chain, empty when the
// server reported no continuation.
type fetchFunc[T any] func(ctx context.Context, token string) ([]T, string, error)

// Iterator streams the items of one list verb across resumption batches in
// repository order. [Iterator.Next] fetches lazily: the following batch is
// requested only once the current one is exhausted, using the context the
// iterator was created with.
//
// Iteration ends when the server returns no continuation token, or returns
// a token alongside an empty batch, which guards against repositories that
// never stop issuing tokens.
type Iterator[T any] struct {
	ctx   context.Context
	fetch fetchFunc[T]

	items   []T
	token   string
	pos     int
	current T
	done    bool
	err     error
}

// newIterator fetches the first batch eagerly so that protocol errors such
// as noRecordsMatch surface from the list call itself.
func newIterator[T any](ctx context.Context, fetch fetchFunc[T]) (*Iterator[T], error) {
	items, token, err := fetch(ctx, "")
	if err != nil {
		return nil, err
	}
	return &Iterator[T]{ctx: ctx, fetch: fetch, items: items, token: token}, nil
}

// Next advances to the next item, fetching the next batch when needed. It
// returns false when the stream is exhausted or a fetch failed; check
// [Iterator.Err] afterwards to tell the two apart.
func (it *Iterator[T]) Next() bool {
	for {
		if it.done || it.err != nil {
			return false
		}
		if it.pos < len(it.items) {
			it.current = it.items[it.pos]
			it.pos++
			return true
		}
		if it.token == "" || len(it.items) == 0 {
			it.done = true
			return false
		}
		items, token, err := it.fetch(it.ctx, it.token)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		it.items, it.token, it.pos = items, token, 0
	}
}

// Item returns the item [Iterator.Next] last advanced to.
func (it *Iterator[T]) Item() T { return it.current }

// Err returns the error that terminated iteration early, if any.
func (it *Iterator[T]) Err() error { return it.err }

// Collect drains the iterator into a slice.
func (it *Iterator[T]) Collect() ([]T, error) {
	var items []T
	for it.Next() {
		items = append(items, it.Item())
	}
	return items, it.Err()
}
