package deal

import "fmt"

// Status is the deal lifecycle state. The integer mapping is the persisted
// representation and must stay stable.
type Status int

const (
	StatusCreated   Status = 0
	StatusFunded    Status = 1
	StatusActive    Status = 2
	StatusDisputed  Status = 3
	StatusCompleted Status = 4
	StatusCancelled Status = 5
)

// StatusFromInt decodes a stored status value, failing closed on anything
// outside the known range.
func StatusFromInt(v int) (Status, error) {
	if v < int(StatusCreated) || v > int(StatusCancelled) {
		return 0, fmt.Errorf("deal: unknown status value %d", v)
	}
	return Status(v), nil
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusActive:
		return "active"
	case StatusDisputed:
		return "disputed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// releasable reports whether milestone release or dispute raising is allowed.
func (s Status) releasable() bool {
	return s == StatusFunded || s == StatusActive
}

// Ruling is the final disposition of a dispute.
type Ruling int

const (
	RulingNone  Ruling = 0
	RulingPayer Ruling = 1
	RulingPayee Ruling = 2
	RulingSplit Ruling = 3
)

// RulingFromInt decodes a stored ruling value, failing closed on unknowns.
func RulingFromInt(v int) (Ruling, error) {
	if v < int(RulingNone) || v > int(RulingSplit) {
		return 0, fmt.Errorf("deal: unknown ruling value %d", v)
	}
	return Ruling(v), nil
}

func (r Ruling) String() string {
	switch r {
	case RulingNone:
		return "none"
	case RulingPayer:
		return "payer"
	case RulingPayee:
		return "payee"
	case RulingSplit:
		return "split"
	default:
		return fmt.Sprintf("ruling(%d)", int(r))
	}
}
