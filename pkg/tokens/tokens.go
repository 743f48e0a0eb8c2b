// Package tokens loads the static identity table used to authenticate API
// callers.
//
// The identity document is a list of {name, token} records, written either as
// JSON (the historical auth.json format) or as YAML:
//
//	[
//	  {"name": "alice", "token": "s3cr3t"},
//	  {"name": "ci",    "token": "0f6b..."}
//	]
//
// A Table is immutable once built and can be shared between goroutines
// without locking.
package tokens

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/marmos91/assetfiles/internal/logger"
	"gopkg.in/yaml.v3"
)

// Identity is one entry of the identity document.
type Identity struct {
	Name  string `json:"name" yaml:"name"`
	Token string `json:"token" yaml:"token"`
}

// Table maps secret tokens to identity names.
type Table struct {
	bySecret map[string]string
}

// NewTable indexes identities by token.
//
// Identities with an empty token are ignored. When two identities share a
// token the later one wins and a warning is logged.
func NewTable(identities []Identity) Table {
	bySecret := make(map[string]string, len(identities))
	for _, id := range identities {
		if id.Token == "" {
			logger.Debug("Ignoring identity %q with empty token", id.Name)
			continue
		}
		if prev, ok := bySecret[id.Token]; ok && prev != id.Name {
			logger.Warn("Identities %q and %q share a token, %q wins", prev, id.Name, id.Name)
		}
		bySecret[id.Token] = id.Name
	}
	return Table{bySecret: bySecret}
}

// Load reads the identity document at path.
//
// Any read or parse failure yields an empty table, which disables
// authentication. Use LoadStrict to learn why a document was rejected.
func Load(path string) Table {
	table, err := LoadStrict(path)
	if err != nil {
		logger.Warn("Identity table unavailable, authentication disabled: %v", err)
		return Table{}
	}
	return table
}

// LoadStrict reads the identity document at path and reports failures.
func LoadStrict(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read identity file: %w", err)
	}

	identities, err := Parse(data)
	if err != nil {
		return Table{}, fmt.Errorf("failed to parse identity file %s: %w", path, err)
	}

	return NewTable(identities), nil
}

// Parse decodes an identity document. JSON input is decoded strictly as JSON;
// anything else is treated as YAML.
func Parse(data []byte) ([]Identity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("identity document is empty")
	}

	var identities []Identity
	if trimmed[0] == '[' || trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &identities); err != nil {
			return nil, err
		}
		return identities, nil
	}

	if err := yaml.Unmarshal(trimmed, &identities); err != nil {
		return nil, err
	}
	return identities, nil
}

// Lookup returns the identity name owning secret.
func (t Table) Lookup(secret string) (string, bool) {
	if secret == "" {
		return "", false
	}
	name, ok := t.bySecret[secret]
	return name, ok
}

// Len returns the number of distinct tokens.
func (t Table) Len() int {
	return len(t.bySecret)
}

// Empty reports whether the table has no identities.
func (t Table) Empty() bool {
	return len(t.bySecret) == 0
}

// Names returns the sorted, de-duplicated identity names.
func (t Table) Names() []string {
	seen := make(map[string]struct{}, len(t.bySecret))
	names := make([]string, 0, len(t.bySecret))
	for _, name := range t.bySecret {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
