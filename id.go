package qmin

import "github.com/xraph/qmin/id"

// ID is the identifier type for sessions and dequeued messages.
type ID = id.ID

// Prefix identifies the entity type encoded in an ID.
type Prefix = id.Prefix
