package model

// QueryHistoryItem is one prior turn of the conversation, oldest first.
type QueryHistoryItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is the generated response plus its source attributions.
// NoMatch marks the "index holds nothing relevant" case, which is a
// successful answer, not an error.
type Answer struct {
	Text         string        `json:"text"`
	Attributions []Attribution `json:"attributions"`
	NoMatch      bool          `json:"no_match,omitempty"`
}

// Delta is one streamed fragment of an answer. A Delta with Err set is
// terminal; deltas already delivered before it stand.
type Delta struct {
	Text string
	Err  error
}
