package ledger

import "fmt"

// ValidationError rejects transaction input. The ledger is left unchanged.
// Policy marks input that is well-formed but refused by this ledger's rules.
type ValidationError struct {
	Field  string
	Reason string
	Policy bool
}

func (e *ValidationError) Error() string {
	if e.Policy {
		return fmt.Sprintf("transaction refused by ledger policy: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid transaction: %s %s", e.Field, e.Reason)
}
