// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package interaction

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID generates a new interaction ID.
func NewID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// ParseID parses an interaction ID.
func ParseID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.In("interaction").With("id", s).Wrapf(err, "invalid interaction ID")
	}
	return id, nil
}
