package core

// Logger is any structured logger.
// args may hold errors, a map[string]interface{} of extra fields, or the request's claims.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user a log entry relates to (reported to error trackers).
type Person struct {
	ID       string
	Email    string
	TenantID string
}
