package types

// Event is the wire form of a ledger event: a type identifier such as
// "loans.repaid" plus flat string attributes. Engines build these through
// their typed event structs; consumers only ever see this shape.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
