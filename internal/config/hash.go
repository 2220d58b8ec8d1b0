package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Reserved document keys. They carry identity and revision on the wire
// and are stripped before hashing and persisting.
const (
	IDKey  = "_id"
	RevKey = "_rev"
)

// Canonical renders content as canonical JSON: keys sorted, no
// inter-token whitespace, UTF-8 without HTML escaping. Reserved keys are
// excluded. A nil document canonicalizes as the empty object.
func Canonical(content map[string]any) ([]byte, error) {
	stripped := make(map[string]any, len(content))
	for k, v := range content {
		if k == IDKey || k == RevKey {
			continue
		}
		stripped[k] = v
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stripped); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	// Encoder appends a newline; canonical form has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Hash returns the lower-case hex SHA-256 of the canonical form.
func Hash(content map[string]any) (string, error) {
	canon, err := Canonical(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Strip returns a copy of content without the reserved keys.
func Strip(content map[string]any) map[string]any {
	if content == nil {
		return nil
	}
	out := make(map[string]any, len(content))
	for k, v := range content {
		if k == IDKey || k == RevKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Stamp returns a copy of content with _id and _rev set for the wire.
func Stamp(content map[string]any, id, rev string) map[string]any {
	out := make(map[string]any, len(content)+2)
	for k, v := range content {
		if k == IDKey || k == RevKey {
			continue
		}
		out[k] = v
	}
	out[IDKey] = id
	out[RevKey] = rev
	return out
}

// deepCopy clones a document through a JSON round trip, normalizing
// values to JSON types. Nil stays nil.
func deepCopy(content map[string]any) map[string]any {
	if content == nil {
		return nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		// Documents are JSON mappings by construction; a marshal
		// failure means a caller put something unencodable in one.
		panic(fmt.Sprintf("config: unencodable document: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return out
}
