package request

import "errors"

// ErrVersionConflict is surfaced after a writer has lost the version race
// casAttempts times in a row.
var ErrVersionConflict = errors.New("request version conflict")

const casAttempts = 3

// WithVersionRetry is the single conflict-retry policy shared by every
// writer. op must re-read the current version on each attempt and report
// whether its guarded write was accepted; a false result without error means
// the version moved underneath it and the attempt is repeated.
func WithVersionRetry(op func() (bool, error)) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		ok, err := op()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrVersionConflict
}
