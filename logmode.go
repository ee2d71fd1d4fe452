package pubquery

// LogMode controls how verbosely the QueryBuilder reports rendered SQL,
// independent of the structured error logging that always happens on
// failure. It mirrors the teacher's log-verbosity knob.
type LogMode int

const (
	LogSilent LogMode = iota
	LogError
	LogWarn
	LogInfo
	LogDebug
)
