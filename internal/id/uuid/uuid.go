// Package uuid generates entity and task run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator hands out UUIDv7 strings, which sort by creation time. Run
// history listings rely on that order.
type Generator struct{}

func New() Generator { return Generator{} }

func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id.String(), nil
}
