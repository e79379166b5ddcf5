// Package kv provides the persistent key-value substrate the orchestrator's
// alarm store is built on. Keys are hierarchical path segments (e.g.
// {"alarm_clock", "alarm_3"}) encoded with a configurable separator (default
// ':') so a single on-device namespace can hold both the alarm slots and the
// MQTT/network settings rows without key collisions.
//
// The package includes a BadgerDB-backed implementation for the on-device
// store and an in-memory implementation used by orchestrator tests that
// exercise crash-recovery and catch-up without touching disk.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")
)

// Key is a hierarchical path represented as a slice of string segments.
// For example, Key{"user", "g", "e", "Alice"} encodes to "user:g:e:Alice"
// using the default separator ':'.
//
// Segments must not contain the configured separator character.
type Key []string

// String returns the key as a human-readable string using ':' as separator.
// This is for display/debug only; use Options.encode for storage encoding.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair returned by List and used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries whose key starts with the given prefix.
	// The iteration order is lexicographic by encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet atomically stores multiple key-value pairs.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete atomically removes multiple keys.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator is the default separator byte used to encode key segments.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator is the byte used to join key segments when encoding to storage.
	// Default is ':' if zero.
	Separator byte

	// Logger receives a debug line for every mutating call (Set, Delete,
	// BatchSet, BatchDelete), tagged with the encoded key. Default is
	// logging.Noop(). The alarm store's slot writes/deletes show up here as
	// a visible audit trail of its persisted state, e.g. "kv: set
	// alarm_clock:alarm_3 (23 bytes)".
	Logger logging.Logger
}

// sep returns the effective separator.
func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

// logger returns the effective logger.
func (o *Options) logger() logging.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return logging.Noop()
}

// encode converts a Key to its byte representation using the separator.
// Panics if a segment contains the separator byte — that would make the
// encoding ambiguous to decode back into the original segments.
func (o *Options) encode(k Key) []byte {
	s := o.sep()
	// Calculate total length to avoid allocations.
	n := 0
	for i, seg := range k {
		if strings.IndexByte(seg, s) >= 0 {
			panic(fmt.Sprintf("kv: key segment %q contains separator %q", seg, s))
		}
		if i > 0 {
			n++ // separator
		}
		n += len(seg)
	}
	buf := make([]byte, n)
	pos := 0
	for i, seg := range k {
		if i > 0 {
			buf[pos] = s
			pos++
		}
		pos += copy(buf[pos:], seg)
	}
	return buf
}

// decode converts a byte representation back to a Key using the separator.
func (o *Options) decode(b []byte) Key {
	s := o.sep()
	parts := splitBytes(b, s)
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}

// namespaced scopes a Store to keys under a fixed leading segment, so a
// caller that owns one namespace (e.g. the alarm store's "alarm_clock" rows)
// never has to repeat that segment at every call site.
type namespaced struct {
	Store
	prefix string
}

// Namespace returns a Store that transparently prepends segment to every
// Key passed to Get/Set/Delete/List/BatchSet/BatchDelete, and strips it back
// off the keys List returns. Multiple namespaces can share the same
// underlying Store without key collisions.
func Namespace(store Store, segment string) Store {
	return namespaced{Store: store, prefix: segment}
}

func (n namespaced) scoped(k Key) Key {
	full := make(Key, 0, len(k)+1)
	full = append(full, n.prefix)
	return append(full, k...)
}

func (n namespaced) Get(ctx context.Context, key Key) ([]byte, error) {
	return n.Store.Get(ctx, n.scoped(key))
}

func (n namespaced) Set(ctx context.Context, key Key, value []byte) error {
	return n.Store.Set(ctx, n.scoped(key), value)
}

func (n namespaced) Delete(ctx context.Context, key Key) error {
	return n.Store.Delete(ctx, n.scoped(key))
}

func (n namespaced) List(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	inner := n.Store.List(ctx, n.scoped(prefix))
	return func(yield func(Entry, error) bool) {
		for entry, err := range inner {
			if err == nil && len(entry.Key) > 0 {
				entry.Key = entry.Key[1:]
			}
			if !yield(entry, err) {
				return
			}
		}
	}
}

func (n namespaced) BatchSet(ctx context.Context, entries []Entry) error {
	scoped := make([]Entry, len(entries))
	for i, e := range entries {
		scoped[i] = Entry{Key: n.scoped(e.Key), Value: e.Value}
	}
	return n.Store.BatchSet(ctx, scoped)
}

func (n namespaced) BatchDelete(ctx context.Context, keys []Key) error {
	scoped := make([]Key, len(keys))
	for i, k := range keys {
		scoped[i] = n.scoped(k)
	}
	return n.Store.BatchDelete(ctx, scoped)
}

// splitBytes splits b by separator byte, similar to bytes.Split but returns
// [][]byte without importing bytes package for this single use.
func splitBytes(b []byte, sep byte) [][]byte {
	n := 1
	for _, c := range b {
		if c == sep {
			n++
		}
	}
	parts := make([][]byte, 0, n)
	start := 0
	for i, c := range b {
		if c == sep {
			parts = append(parts, b[start:i])
			start = i + 1
		}
	}
	parts = append(parts, b[start:])
	return parts
}
