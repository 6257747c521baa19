package model

// Tier identifies the retention class a memory entry belongs to.
type Tier string

const (
	// TierImmediate holds the most recent conversational turns.
	TierImmediate Tier = "immediate"

	// TierSession holds entries for the active session.
	TierSession Tier = "session"

	// TierSummarized holds compacted summaries of older activity.
	TierSummarized Tier = "summarized"

	// TierArchival holds long-term entries evicted from the session.
	TierArchival Tier = "archival"
)

// IsValid returns true if the tier is recognized.
func (t Tier) IsValid() bool {
	switch t {
	case TierImmediate, TierSession, TierSummarized, TierArchival:
		return true
	default:
		return false
	}
}

// AllTiers returns all supported memory tiers in retention order.
func AllTiers() []Tier {
	return []Tier{TierImmediate, TierSession, TierSummarized, TierArchival}
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// EntryType classifies what kind of information a memory entry carries.
type EntryType string

const (
	// TypeMessage is a raw conversational message.
	TypeMessage EntryType = "message"

	// TypeSummary is a condensed summary of prior messages.
	TypeSummary EntryType = "summary"

	// TypeFact is an extracted durable fact.
	TypeFact EntryType = "fact"

	// TypeContext is ambient context supplied by the caller.
	TypeContext EntryType = "context"
)

// IsValid returns true if the entry type is recognized.
func (et EntryType) IsValid() bool {
	switch et {
	case TypeMessage, TypeSummary, TypeFact, TypeContext:
		return true
	default:
		return false
	}
}

// AllEntryTypes returns all supported entry types.
func AllEntryTypes() []EntryType {
	return []EntryType{TypeMessage, TypeSummary, TypeFact, TypeContext}
}

// String returns the string representation of the entry type.
func (et EntryType) String() string {
	return string(et)
}
