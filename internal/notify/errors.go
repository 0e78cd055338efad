package notify

import "errors"

// ErrNoRecipients is returned when a mail has nobody to go to.
var ErrNoRecipients = errors.New("notify: no recipients")
