package internal

// MessageDeduper remembers which message ids have already been handed to the
// renderer for the current room selection. The server has no delta endpoint
// and re-sends the full history on every poll, so this set is the only
// duplication guard in the system. It must be reset whenever the selected
// room changes.
type MessageDeduper struct {
	seen map[int64]struct{}
}

func NewMessageDeduper() *MessageDeduper {
	return &MessageDeduper{seen: make(map[int64]struct{})}
}

// FilterNew returns the messages whose ids have not been seen yet, in their
// original order, and marks every returned id as seen.
func (d *MessageDeduper) FilterNew(messages []Message) []Message {
	var fresh []Message
	for _, msg := range messages {
		if _, ok := d.seen[msg.ID]; ok {
			continue
		}
		d.seen[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
	}
	return fresh
}

// Reset forgets everything. Called on every room switch.
func (d *MessageDeduper) Reset() {
	d.seen = make(map[int64]struct{})
}

// SeenCount returns how many distinct message ids have been observed for the
// current room selection.
func (d *MessageDeduper) SeenCount() int {
	return len(d.seen)
}
