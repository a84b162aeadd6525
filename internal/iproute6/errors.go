package iproute6

import "github.com/AdguardTeam/golibs/errors"

// ErrNetUnreachable is returned by [Table.Lookup] when no route matches
// the destination and no on-link (all-zero gateway) entry exists either.
const ErrNetUnreachable errors.Error = "network unreachable"
