package storage

// ErrNotFound is returned when an item doesn't exist in the store.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return "item not found"
	}

	return "item not found: " + e.ID
}

// ErrDuplicate is returned when an item id is stored twice. Items are
// immutable, so a duplicate Put is always a caller bug.
type ErrDuplicate struct {
	ID string
}

func (e ErrDuplicate) Error() string {
	return "item already exists: " + e.ID
}
