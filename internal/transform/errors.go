package transform

import (
	"errors"
	"fmt"
)

var ErrUnknownTranslation = errors.New("unknown translation")

// StackImbalanceError means an end event did not match the innermost open
// element. It indicates a broken parser or filter and is never recovered.
type StackImbalanceError struct {
	Want string // tag on top of the stack ("" when empty)
	Got  string // tag of the end event
}

func (e *StackImbalanceError) Error() string {
	if e.Want == "" {
		return fmt.Sprintf("stack imbalance: </%s> with no open element", e.Got)
	}
	return fmt.Sprintf("stack imbalance: </%s> while <%s> is open", e.Got, e.Want)
}

// UnmappedVerseReferenceError is returned when an href points at a verse
// anchor that has not appeared earlier in the chapter.
type UnmappedVerseReferenceError struct {
	Href string
}

func (e *UnmappedVerseReferenceError) Error() string {
	return fmt.Sprintf("verse reference %q precedes its anchor", e.Href)
}
