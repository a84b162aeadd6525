// Package settings implements the small external settings store spec §1
// places out of scope as a standalone collaborator, but something must
// back the four symbolic keys (ip6, gateway6, prefix, dns6) the DHCPv6
// client writes through (spec §6 "Settings written"). Adapted from
// dhcpsvc/db.go's atomic JSON persistence.
package settings

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/renameio/v2/maybe"

	"github.com/6bringup/stack6/internal/addr6"
)

// filePerm is the permission bits for the settings file.
const filePerm fs.FileMode = 0o640

// data is the JSON-on-disk shape of the store, holding exactly the four
// keys spec §6 names.
type data struct {
	IP6      string `json:"ip6,omitempty"`
	Gateway6 string `json:"gateway6,omitempty"`
	Prefix   int    `json:"prefix,omitempty"`
	DNS6     string `json:"dns6,omitempty"`
}

// Store is the atomic, file-backed key/value store for the four settings
// this core writes: the autoconfigured address, the default gateway, the
// prefix length, and the first DNS server (spec §6). It is safe for
// concurrent use by DHCPv6 sessions, which may run concurrently for
// different interfaces.
type Store struct {
	path string

	mu sync.Mutex
	d  data
}

// Open loads path if it exists (a missing file starts the store empty,
// mirroring dhcpsvc/db.go's dbLoad "no db file found" tolerance) and
// returns a [Store] backed by it.
func Open(path string) (s *Store, err error) {
	s = &Store{path: path}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}

		return nil, fmt.Errorf("settings: opening %q: %w", path, err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	if err = json.NewDecoder(f).Decode(&s.d); err != nil {
		return nil, fmt.Errorf("settings: decoding %q: %w", path, err)
	}

	return s, nil
}

// save writes s.d to s.path atomically via [maybe.WriteFile], mirroring
// dhcpsvc/db.go's dbStore.
func (s *Store) save() (err error) {
	buf, err := json.Marshal(s.d)
	if err != nil {
		return fmt.Errorf("settings: encoding: %w", err)
	}

	if err = maybe.WriteFile(s.path, buf, filePerm); err != nil {
		return fmt.Errorf("settings: writing %q: %w", s.path, err)
	}

	return nil
}

// SetAddress stores the "ip6" setting: the address DHCPv6 assigned to an
// interface.
func (s *Store) SetAddress(addr addr6.Addr) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.d.IP6 = addr.String()

	return s.save()
}

// SetGateway stores the "gateway6" setting: the router address a Router
// Advertisement or DHCPv6 exchange identified.
func (s *Store) SetGateway(addr addr6.Addr) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.d.Gateway6 = addr.String()

	return s.save()
}

// SetPrefixLen stores the "prefix" setting.
func (s *Store) SetPrefixLen(n int) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.d.Prefix = n

	return s.save()
}

// SetDNS stores the "dns6" setting: spec §4.8's "store the first address
// into the global DNS6 setting" — last writer wins across netdevs (spec
// §5 "Ordering guarantees").
func (s *Store) SetDNS(addr addr6.Addr) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.d.DNS6 = addr.String()

	return s.save()
}

// Address returns the currently stored "ip6" setting, if any.
func (s *Store) Address() (addr addr6.Addr, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.d.IP6 == "" {
		return addr6.Addr{}, false
	}

	a, err := addr6.ParseAddr(s.d.IP6)

	return a, err == nil
}

// Gateway returns the currently stored "gateway6" setting, if any.
func (s *Store) Gateway() (addr addr6.Addr, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.d.Gateway6 == "" {
		return addr6.Addr{}, false
	}

	a, err := addr6.ParseAddr(s.d.Gateway6)

	return a, err == nil
}

// PrefixLen returns the currently stored "prefix" setting.
func (s *Store) PrefixLen() (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.d.Prefix
}

// DNS returns the currently stored "dns6" setting, if any.
func (s *Store) DNS() (addr addr6.Addr, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.d.DNS6 == "" {
		return addr6.Addr{}, false
	}

	a, err := addr6.ParseAddr(s.d.DNS6)

	return a, err == nil
}
