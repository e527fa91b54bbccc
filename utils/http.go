package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the vision client; multi-image extractions can take
// a while, hence the generous timeout.
var HTTPClient = &http.Client{
	Timeout: 120 * time.Second,
}
