// Package store resolves which vocabulary store a process operates on and
// where its database lives. Schema migrations are embedded in the
// migrations subpackage.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultID is used when neither a flag nor the environment names a store.
	DefaultID = "default"

	// EnvStore selects the store when no explicit ID is given.
	EnvStore = "VOCAB_STORE"

	// EnvHome overrides the base directory that holds stores/.
	EnvHome = "VOCAB_HOME"

	// DBFileName is the database file inside each store directory.
	DBFileName = "vocab.db"
)

const (
	maxIDLength      = 96
	maxSegments      = 3
	maxSegmentLength = 32
)

// ErrInvalidID indicates a malformed store ID.
var ErrInvalidID = errors.New("store: invalid store ID")

// segmentRe matches one lowercase alphanumeric segment; hyphens separate
// words and may not lead, trail or repeat.
var segmentRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateID checks a store ID of the form team[/project[/area]].
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength {
		return fmt.Errorf("%w: length must be 1-%d", ErrInvalidID, maxIDLength)
	}
	segments := strings.Split(id, "/")
	if len(segments) > maxSegments {
		return fmt.Errorf("%w: at most %d segments", ErrInvalidID, maxSegments)
	}
	for _, seg := range segments {
		if len(seg) > maxSegmentLength || !segmentRe.MatchString(seg) {
			return fmt.Errorf("%w: bad segment %q", ErrInvalidID, seg)
		}
	}
	return nil
}

// Resolve picks the store ID: explicit, then $VOCAB_STORE, then DefaultID.
func Resolve(explicit string) (string, error) {
	id, origin := explicit, "store ID"
	if id == "" {
		id, origin = os.Getenv(EnvStore), EnvStore
	}
	if id == "" {
		return DefaultID, nil
	}
	if err := ValidateID(id); err != nil {
		return "", fmt.Errorf("%s %q: %w", origin, id, err)
	}
	return id, nil
}

// Root returns the directory holding all stores: $VOCAB_HOME/stores,
// ~/.vocab/stores, or ./.vocab/stores without a home directory.
func Root() string {
	if home := os.Getenv(EnvHome); home != "" {
		return filepath.Join(home, "stores")
	}
	base, err := os.UserHomeDir()
	if err != nil || base == "" {
		base, _ = os.Getwd()
	}
	return filepath.Join(base, ".vocab", "stores")
}

// DBPath returns the database file of a store. Segments of a path-style ID
// become nested directories, so "lab/oncology" lives at
// <root>/lab/oncology/vocab.db.
func DBPath(id string) string {
	parts := append([]string{Root()}, strings.Split(id, "/")...)
	return filepath.Join(append(parts, DBFileName)...)
}
