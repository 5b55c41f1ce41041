package model

// Page is one ordered unit of extracted content. Pages from the
// structural and semantic extraction paths are interchangeable to the
// chunker; Markdown is only set by the semantic path.
type Page struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Markdown string `json:"markdown,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	Tables   int    `json:"tables,omitempty"`
	Codes    int    `json:"codes,omitempty"`
}

// Content returns the text the chunker should consume: structured
// markdown when the semantic path produced it, the raw text layer
// otherwise.
func (p *Page) Content() string {
	if p.Markdown != "" {
		return p.Markdown
	}
	return p.Text
}
