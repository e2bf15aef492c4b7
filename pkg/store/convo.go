package store

// ConvoKey canonicalizes an unordered participant pair into the single key
// a conversation lives under. Both orders of the same pair map to the same
// key, which is what makes the conversation-per-pair invariant enforceable
// with one uniqueness constraint.
func ConvoKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}
