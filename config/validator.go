package config

import (
	stderrors "errors"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/schema"
)

// checkSchema validates the merged layers against the embedded schema. The
// individual violations are kept under the "violations" detail so that
// `--verbose` can list them.
func checkSchema(raw map[string]interface{}) error {
	v, err := schema.NewValidator()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "embedded configuration schema is invalid")
	}
	err = v.Validate(raw)
	if err == nil {
		return nil
	}

	invalid := errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	var violations *schema.ViolationsError
	if stderrors.As(err, &violations) {
		invalid = invalid.WithDetail("violations", violations.Violations)
	}
	return invalid
}

// withViolations copies the schema violations of cause onto err.
func withViolations(err *errors.Error, cause error) *errors.Error {
	if v, ok := errors.Detail(cause, "violations"); ok {
		return err.WithDetail("violations", v)
	}
	return err
}
