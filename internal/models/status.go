package models

type Status string

const (
	StatusSent      Status = "sent"
	StatusServed    Status = "served"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusPaid      Status = "paid"
	StatusGift      Status = "gift"
	StatusWaste     Status = "waste"
	StatusCancel    Status = "cancel"
)

// IsActive reports whether the row still counts toward the table balance.
func (s Status) IsActive() bool {
	switch s {
	case StatusSent, StatusServed, StatusPreparing, StatusReady:
		return true
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusGift, StatusWaste, StatusCancel:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

func (s Status) String() string {
	return string(s)
}
