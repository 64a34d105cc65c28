package core

import (
	"fmt"
	"sort"
	"sync"
)

// TableInfo describes a destination table.
type TableInfo struct {
	Key   string // Unique identifier: "user_behavior"
	Table string // Destination table name: "UserBehaviorData"
	Label string // Display name for logs
}

// CopyRowFunc converts a transformed record to a row of values.
// The returned slice must contain values in the same order as CopyColumns.
// Values are native Go types or pgtype values, so both pgx COPY and
// database/sql drivers accept them.
type CopyRowFunc func(rec TransformedRecord) []any

// IDFunc returns the identifier reported for a loaded record.
type IDFunc func(rec TransformedRecord) string

// TableDefinition contains everything needed to load a table.
type TableDefinition struct {
	Info TableInfo

	// CopyColumns lists destination column names in the order CopyRow
	// returns values.
	CopyColumns []string
	CopyRow     CopyRowFunc
	RecordID    IDFunc
}

// Validate checks that the definition can be used by a Loader.
func (t TableDefinition) Validate() error {
	if t.Info.Key == "" {
		return fmt.Errorf("table definition: empty key")
	}
	if t.Info.Table == "" {
		return fmt.Errorf("table definition %s: empty table name", t.Info.Key)
	}
	if len(t.CopyColumns) == 0 || t.CopyRow == nil {
		return fmt.Errorf("table definition %s: columns and row builder are required", t.Info.Key)
	}
	if t.RecordID == nil {
		return fmt.Errorf("table definition %s: record id func is required", t.Info.Key)
	}
	return nil
}

var (
	registry   = make(map[string]TableDefinition)
	registryMu sync.RWMutex
)

// Register adds a table definition to the registry.
// Panics if a table with the same key is already registered or the
// definition is incomplete.
func Register(def TableDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if err := def.Validate(); err != nil {
		panic(err.Error())
	}
	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("table already registered: %s", def.Info.Key))
	}

	registry[def.Info.Key] = def
}

// Get returns a table definition by key.
// Returns false if not found.
func Get(key string) (TableDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered table definitions sorted by key.
func All() []TableDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// TableCount returns the number of registered tables.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered tables.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]TableDefinition)
}
