package classify

import "fmt"

// Verbosity controls how much of the simulation's output is reported. The
// scale is ordered: every level reports at least what the levels below it do.
type Verbosity int

const (
	Silent Verbosity = iota
	Progress
	Extra
	ExtraTransport
	All
)

func (v Verbosity) String() string {
	switch v {
	case Silent:
		return "silent"
	case Progress:
		return "progress"
	case Extra:
		return "extra"
	case ExtraTransport:
		return "transport"
	case All:
		return "all"
	default:
		return fmt.Sprintf("verbosity(%d)", int(v))
	}
}

// ParseVerbosity parses a verbosity name as accepted by the -v flag
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "silent":
		return Silent, nil
	case "progress", "":
		return Progress, nil
	case "extra":
		return Extra, nil
	case "transport":
		return ExtraTransport, nil
	case "all":
		return All, nil
	default:
		return Progress, fmt.Errorf("unknown verbosity %q (want silent, progress, extra, transport or all)", s)
	}
}
