// Package keyspace derives compliant physical keyspace names from logical
// (reverseDomain, table) pairs. Keyspace names must match
// [A-Za-z][A-Za-z0-9_]{0,47}, so long or unfriendly inputs are truncated
// and disambiguated with a hash suffix.
package keyspace

import (
	"crypto/sha1"
	"encoding/base64"
	"regexp"
	"strings"
)

// MaxLength is the keyspace name length limit imposed by the engine.
const MaxLength = 48

var (
	validName  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	leadingRun = regexp.MustCompile(`^[A-Za-z0-9_]+`)
)

// encode produces a charset-valid name of at most maxLen characters.
// Underscores are doubled before dots become underscores so that the two
// cannot collide. When the encoded form is too long or carries invalid
// characters, a prefix of the longest valid leading run is kept and the
// remainder is filled with a base64 SHA-1 of the original input (with "+"
// and "/" both mapped to "_" and "=" padding removed), making the result
// deterministic and collision resistant.
func encode(name string, maxLen int) string {
	enc := strings.ReplaceAll(name, "_", "__")
	enc = strings.ReplaceAll(enc, ".", "_")
	if len(enc) <= maxLen && validName.MatchString(enc) {
		return enc
	}

	prefix := leadingRun.FindString(enc)
	if limit := maxLen * 2 / 3; len(prefix) > limit {
		prefix = prefix[:limit]
	}

	sum := sha1.Sum([]byte(name))
	hash := base64.StdEncoding.EncodeToString(sum[:])
	hash = strings.NewReplacer("+", "_", "/", "_", "=", "").Replace(hash)
	if room := maxLen - len(prefix); len(hash) > room {
		hash = hash[:room]
	}
	return prefix + hash
}

// Encode derives the physical keyspace name for a logical table. The
// domain and table parts are encoded independently and joined with a "_T_"
// infix so a domain and a table sharing a prefix cannot collide. The result
// is deterministic and never longer than MaxLength.
func Encode(reverseDomain, table string) string {
	prefix := encode(reverseDomain, max(26, MaxLength-len(table)-3))
	return prefix + "_T_" + encode(table, MaxLength-len(prefix)-3)
}
