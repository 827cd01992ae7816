package mirror

import "fmt"

// Kind is the category of a filesystem change.
type Kind int

const (
	// Created means a new entry appeared at Path.
	Created Kind = iota
	// Modified means the contents of the entry at Path changed.
	Modified
	// Deleted means the entry at Path was removed.
	Deleted
	// Moved means the entry at From was renamed to Path.
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// A Notification describes a single change under a watch root.
type Notification struct {
	// Path is the absolute path of the changed entry. For moves, it's the
	// destination.
	Path string

	Kind Kind

	// IsDir is whether the entry is a directory, as reported by the
	// notification source. The engine trusts the filesystem over this field
	// whenever the entry still exists.
	IsDir bool

	// From is the origin of a move. It's empty for all other kinds.
	From string
}

func (n Notification) String() string {
	if n.Kind == Moved {
		return fmt.Sprintf("%s %s -> %s", n.Kind, n.From, n.Path)
	}
	return fmt.Sprintf("%s %s", n.Kind, n.Path)
}
