package gemini

// GenerateContentRequest is the generateContent request body.
type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text *string `json:"text,omitempty"`
}

// GenerateContentResponse is the subset of the response the client reads.
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content      *Content `json:"content"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type errorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewPrompt builds a single-turn request for prompt.
func NewPrompt(prompt string) GenerateContentRequest {
	return GenerateContentRequest{
		Contents: []Content{{Parts: []Part{{Text: &prompt}}}},
	}
}

// FirstText returns candidates[0].content.parts[0].text.
func (r *GenerateContentResponse) FirstText() (string, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	c := r.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 || c.Parts[0].Text == nil {
		return "", false
	}
	return *c.Parts[0].Text, true
}
