// Package membership decides whether the local user belongs to a chat and
// owns every participant-set mutation: chat creation, adds, leaves and
// kicks, including admin hand-off and the empty-chat deletion post-condition.
package membership

// Status is the outcome of resolving the local user against a participant
// set.
type Status int

const (
	// NotMember means the local user is absent from the active set. While
	// a chat view is open this is terminal: the view is evicted.
	NotMember Status = iota
	// Member means the local user remains an active participant.
	Member
)

func (s Status) String() string {
	if s == Member {
		return "member"
	}
	return "not-member"
}

// Resolve reports whether localUID is an active participant. A nil map
// resolves to NotMember, matching how a deleted chat record reads.
func Resolve(participants map[string]bool, localUID string) Status {
	if participants[localUID] {
		return Member
	}
	return NotMember
}
