package logparse

// StatusClass returns the hundreds digit of an HTTP status code (2 for
// 2xx, 5 for 5xx), or 0 when the code is outside 100-599.
func StatusClass(status int) int {
	if status < 100 || status > 599 {
		return 0
	}
	return status / 100
}

// IsServerError reports whether status is in the 5xx class.
func IsServerError(status int) bool {
	return StatusClass(status) == 5
}
