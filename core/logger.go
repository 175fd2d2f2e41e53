package core

// Logger is the app-wide logging contract. Implementations accept a message
// followed by loosely-typed context args; a user.User arg tags the log entry
// with the acting user where the backend supports it.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
