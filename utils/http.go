package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound calls that move sprite bytes and profile pages.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
