package types

// Event is the flat wire form of an engine event: a type tag plus string
// attributes. Typed events in core/events build this shape for the RPC feed
// and the indexer.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
