// Package clock abstracts time so retry windows and plan file names are testable.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}
