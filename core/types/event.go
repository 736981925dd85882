package types

// Event is a pool event flattened to string attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Reserve returns the underlying asset the event concerns, if any.
func (e *Event) Reserve() string {
	if e == nil {
		return ""
	}
	if v := e.Attributes["reserve"]; v != "" {
		return v
	}
	return e.Attributes["asset"]
}

// Account returns the position holder the event concerns, if any.
func (e *Event) Account() string {
	if e == nil {
		return ""
	}
	if v := e.Attributes["onBehalfOf"]; v != "" {
		return v
	}
	return e.Attributes["user"]
}
