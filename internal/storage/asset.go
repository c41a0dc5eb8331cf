package storage

import (
	"fmt"
	"unicode/utf8"

	"github.com/pixil98/go-errors"
)

// maxIdLen keeps the encoded file name under common 255 byte limits.
const maxIdLen = 180

type ValidatingSpec interface {
	Validate() error
}

// Asset is the on-disk envelope of one record.
type Asset[T ValidatingSpec] struct {
	Version    uint   `json:"version"`
	Identifier string `json:"id"`
	Spec       T      `json:"spec"`
}

func (a *Asset[T]) Id() string {
	return a.Identifier
}

func (a *Asset[T]) Validate() error {
	el := errors.NewErrorList()

	if a.Version == 0 {
		el.Add(fmt.Errorf("version must be set"))
	}
	el.Add(ValidateId(a.Identifier))
	el.Add(a.Spec.Validate())

	return el.Err()
}

// ValidateId reports whether id can name a stored record. Ids are opaque;
// the file name is derived from an encoding of the id.
func ValidateId(id string) error {
	if id == "" {
		return fmt.Errorf("id must be set")
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("id must be valid UTF-8")
	}
	if len(id) > maxIdLen {
		return fmt.Errorf("id must be at most %d bytes", maxIdLen)
	}
	return nil
}
