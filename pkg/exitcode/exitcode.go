// Package exitcode provides standardized exit codes for pkgscout
package exitcode

// Exit codes for the pkgscout CLI
const (
	Success           = 0
	GeneralError      = 1
	ConfigError       = 2
	ValidationError   = 3
	FileSystemError   = 4
	NetworkError      = 5
	ExecError         = 6
	TimeoutError      = 7
	UnsupportedFormat = 8
	ToolNotFound      = 9
	OutdatedFound     = 10
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ValidationError:
		return "Policy violation"
	case FileSystemError:
		return "File system error"
	case NetworkError:
		return "Network error"
	case ExecError:
		return "Package manager command failed"
	case TimeoutError:
		return "Timeout error"
	case UnsupportedFormat:
		return "Unsupported format"
	case ToolNotFound:
		return "Tool not found"
	case OutdatedFound:
		return "Outdated dependencies found"
	default:
		return "Unknown error"
	}
}
