// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package interaction

// Audio is a block of encoded audio. A zero-length Data is still audio; only
// a nil *Audio means "no audio".
type Audio struct {
	Data        []byte `json:"audio"`
	ContentType string `json:"content_type"`
}

func (a *Audio) clone() *Audio {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Audio{Data: data, ContentType: a.ContentType}
}

// Request is an incoming interaction as received from a client. OutputText
// and OutputAudio are normally absent; a pre-interaction-context handler may
// set them to pre-fill the answer, which the Context then starts with.
type Request struct {
	InputText   *string `json:"input_text,omitempty"`
	InputAudio  *Audio  `json:"input_audio,omitempty"`
	OutputText  *string `json:"output_text,omitempty"`
	OutputAudio *Audio  `json:"output_audio,omitempty"`
}

// NewTextRequest returns a request carrying text only.
func NewTextRequest(text string) *Request {
	return &Request{InputText: &text}
}

// HasText reports whether the request carries input text.
func (r *Request) HasText() bool {
	return r != nil && r.InputText != nil
}

// HasAudio reports whether the request carries input audio.
func (r *Request) HasAudio() bool {
	return r != nil && r.InputAudio != nil
}

// Text returns the input text, or "" when absent.
func (r *Request) Text() string {
	if !r.HasText() {
		return ""
	}
	return *r.InputText
}

// SetInputText records text on the request. Voice recognition handlers use it
// since no Context exists when they run.
func (r *Request) SetInputText(text string) {
	r.InputText = &text
}

// SetOutputText pre-fills the answer the Context starts with.
func (r *Request) SetOutputText(text string) {
	r.OutputText = &text
}

// Response is the result returned to the client.
type Response struct {
	OutputText  *string `json:"output_text"`
	OutputAudio *Audio  `json:"output_audio"`
}

// Text returns the output text, or "" when absent.
func (r *Response) Text() string {
	if r == nil || r.OutputText == nil {
		return ""
	}
	return *r.OutputText
}

// SetOutputText replaces the output text.
func (r *Response) SetOutputText(text string) {
	r.OutputText = &text
}

// Broadcast is the payload of the publish hooks. Handlers of pre-publish may
// rewrite Message before it is sent.
type Broadcast struct {
	Topic   string
	Message string
}
