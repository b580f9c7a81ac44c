package pg

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/ids"
)

// uuidArg converts an application identifier to the native uuid column type.
// Create paths reject malformed ids; lookup paths use uuidLookup instead so a
// malformed id reads as "no such row".
func uuidArg(entity, id string) (uuid.UUID, error) {
	u, err := ids.ToUUID(id)
	if err != nil {
		return uuid.UUID{}, badge.Validationf("%s id %q is not a uuid", entity, id)
	}
	return u, nil
}

// uuidLookup reports ok=false when the id cannot name any row.
func uuidLookup(id string) (uuid.UUID, bool) {
	u, err := ids.ToUUID(id)
	return u, err == nil
}

// jsonColumn renders a value for a nullable jsonb column. Nil maps, empty
// maps and empty slices store as NULL so absent data round-trips as absent.
func jsonColumn(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// decodeJSON fills target from a jsonb column; NULL leaves it untouched.
func decodeJSON(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func stringOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
