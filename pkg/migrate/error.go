package migrate

import "errors"

// ErrFatalMigration marks a failure that stopped a migration. Failures before
// the drop leave the collection untouched; later ones name the step and the
// backup holding the exported records.
var ErrFatalMigration = errors.New("fatal migration error")
