package cdc

// MutationKind is the notification action derived from a change record.
type MutationKind string

const (
	MutationCreate  MutationKind = "CREATE"
	MutationUpdate  MutationKind = "UPDATE"
	MutationDelete  MutationKind = "DELETE"
	MutationUnknown MutationKind = "UNKNOWN"
)

// MutationKinds lists every kind Classify can return.
var MutationKinds = []MutationKind{MutationCreate, MutationUpdate, MutationDelete, MutationUnknown}

// Classify maps a stream event name to a MutationKind.
func Classify(eventName string) MutationKind {
	switch eventName {
	case "INSERT":
		return MutationCreate
	case "MODIFY":
		return MutationUpdate
	case "REMOVE":
		return MutationDelete
	default:
		return MutationUnknown
	}
}

// ParseMutationKind validates a configured action name.
func ParseMutationKind(value string) (MutationKind, bool) {
	for _, kind := range MutationKinds {
		if string(kind) == value {
			return kind, true
		}
	}
	return "", false
}
