package postgresql

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// marshalJSONB prepares a value for a JSONB column. Nil maps and slices are
// stored as SQL NULL rather than the JSON literal null.
func marshalJSONB(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONB value: %w", err)
	}

	if string(data) == "null" {
		return nil, nil
	}

	return data, nil
}

// unmarshalJSONB loads a JSONB column into out, treating NULL as absent.
func unmarshalJSONB(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB value: %w", err)
	}

	return nil
}
