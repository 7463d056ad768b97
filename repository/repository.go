// Package repository is the persisted key/value configuration store. Values
// are addressed by a group and a key, for example Networking/MTU.
package repository

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("repository: not found")

// Well-known groups and keys.
const (
	GroupNetworking = "Networking"
	GroupModem      = "Modem"
	GroupTimeouts   = "Timeouts"

	KeyInterfacePrefix = "InterfaceNamePrefix"
	KeyMTU             = "MTU"
	KeyModemType       = "Type"

	DefaultInterfacePrefix = "rmnet"
	DefaultMTU             = 1500
)

// Repository reads persisted configuration values.
type Repository interface {
	String(group, key string) (string, error)
	Int(group, key string) (int, error)
}

// StringOr returns the stored value or def when the key is missing.
func StringOr(r Repository, group, key, def string) (string, error) {
	v, err := r.String(group, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	return v, err
}

// IntOr returns the stored value or def when the key is missing.
func IntOr(r Repository, group, key string, def int) (int, error) {
	v, err := r.Int(group, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	return v, err
}

func atoi(group, key, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("repository: %s/%s: %w", group, key, err)
	}
	return n, nil
}

// Timeouts serves per-request-kind timeouts stored in milliseconds under
// the Timeouts group.
type Timeouts struct {
	Repo Repository
}

func (t Timeouts) Timeout(kind string) (time.Duration, bool) {
	if t.Repo == nil {
		return 0, false
	}
	ms, err := t.Repo.Int(GroupTimeouts, kind)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// Map is an in-memory repository.
type Map map[string]map[string]string

func (m Map) String(group, key string) (string, error) {
	v, ok := m[group][key]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, group, key)
	}
	return v, nil
}

func (m Map) Int(group, key string) (int, error) {
	v, err := m.String(group, key)
	if err != nil {
		return 0, err
	}
	return atoi(group, key, v)
}
