package briefing

import "fmt"

// Status is the closed set of briefing lifecycle states.
type Status uint8

const (
	StatusInProgress Status = iota + 1
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusInProgress:
		return false
	case StatusCompleted, StatusCancelled:
		return true
	default:
		panic(fmt.Sprintf("briefing: unknown status %d", uint8(s)))
	}
}

// ParseStatus maps the persisted representation back to a Status.
func ParseStatus(value string) (Status, error) {
	switch value {
	case "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("briefing: unknown status %q", value)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s < StatusInProgress || s > StatusCancelled {
		return nil, fmt.Errorf("briefing: cannot marshal status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(data []byte) error {
	parsed, err := ParseStatus(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
