// Package project provides project persistence: named workspaces, each with
// a default context and an append-only conversation record, stored in a
// local sqlite database.
package project

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxNameLength is the maximum length for a project name.
const MaxNameLength = 128

// Sentinel errors for project operations. Check with errors.Is().
var (
	// ErrProjectNotFound indicates the requested project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrDuplicateName indicates another project already uses the name.
	ErrDuplicateName = errors.New("project name already in use")

	// ErrInvalidName indicates the project name is empty or too long.
	ErrInvalidName = errors.New("invalid project name")
)

// Project is a named workspace. Its default context seeds a conversation's
// first message when a chat session starts inside it.
type Project struct {
	ID             uuid.UUID
	Name           string
	DefaultContext string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeName trims and validates a project name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
