package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Report store kinds accepted by NewStore. The empty kind selects memory.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedStore = errors.New("unsupported report store")

// StoreKinds lists the kinds NewStore understands, whether or not this build
// includes the sqlite driver.
func StoreKinds() []string {
	return []string{KindMemory, KindSQLite}
}

// NewStore opens an uninitialized compile-report store of the given kind.
// sqlitePath is only read for KindSQLite.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnsupportedStore, kind, strings.Join(StoreKinds(), "|"))
	}
}

// CloseIfSupported releases stores that hold a handle, such as the sqlite
// database. Memory stores need no closing.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
