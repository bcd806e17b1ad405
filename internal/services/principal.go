package services

// Principal is the resolved identity a conversation belongs to: either
// an authenticated user or a minted guest session. The ID is opaque to
// this core; the transport layer decides what goes in it.
type Principal struct {
	ID    string
	Guest bool
}
