package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	customerrors "github.com/axellelanca/locashare/internal/errors"
)

// isUniqueViolation covers both the translated GORM error and the raw
// SQLite message, which differs between drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// storeErr maps a driver error to the domain taxonomy.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *customerrors.Error
	if errors.As(err, &de) {
		return err
	}
	return customerrors.StoreUnavailable(op, err)
}

// escapeLike escapes the LIKE wildcards of a user supplied term.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
