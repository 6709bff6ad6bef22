package scraper

import (
	"errors"
	"fmt"
)

var ErrDetached = errors.New("scraper is not bound to an engine")
var ErrNotSingle = errors.New("single mode scraper built more than one request")
var ErrNoRequests = errors.New("scraper built no requests")

// StatusError is returned by scrapers with a status check when a response
// is not 2xx.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}
