package models

import "fmt"

// Reserved data keys injected by the dispatcher. Caller-supplied values
// under these keys are overwritten unconditionally.
const (
	DataKeyLink   = "link"
	DataKeyOrigin = "origin"
)

// Payload is one notification as supplied by a caller. Data values may be of
// any JSON type; they are normalized to strings before transmission.
type Payload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Image string                 `json:"image,omitempty"`
	Icon  string                 `json:"icon,omitempty"`
	Badge string                 `json:"badge,omitempty"`
	Link  string                 `json:"link,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Message is the fully normalized payload handed to the upstream provider.
// Data is a homogeneous string map, as the provider API requires.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Image string            `json:"image,omitempty"`
	Icon  string            `json:"icon,omitempty"`
	Badge string            `json:"badge,omitempty"`
	Data  map[string]string `json:"data"`
}

// Normalize converts the payload into a Message, stringifying every data
// value and injecting the reserved link and origin keys.
func (p *Payload) Normalize(origin string) *Message {
	data := make(map[string]string, len(p.Data)+2)
	for k, v := range p.Data {
		if v == nil {
			continue
		}
		data[k] = fmt.Sprint(v)
	}
	if p.Link != "" {
		data[DataKeyLink] = p.Link
	}
	if origin != "" {
		data[DataKeyOrigin] = origin
	}
	return &Message{
		Title: p.Title,
		Body:  p.Body,
		Image: p.Image,
		Icon:  p.Icon,
		Badge: p.Badge,
		Data:  data,
	}
}
