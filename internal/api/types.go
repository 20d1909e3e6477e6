package api

// RecognizeRequest is the JSON body of POST /v1/recognize. Each image is an
// independently decoded word crop; predictions come back in the same order.
type RecognizeRequest struct {
	Images []ImagePayload `json:"images"`
}

// ImagePayload carries one encoded image, base64 in JSON bodies. A data-URI
// prefix ("data:image/png;base64,") is tolerated and stripped.
type ImagePayload struct {
	Name string `json:"name,omitempty"`
	Data string `json:"data"`
}

// RecognizeResponse is the result of one recognition call.
type RecognizeResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Words   []WordResult `json:"words"`
}

// WordResult is the decoded text of a single crop with its confidence bound.
type WordResult struct {
	Name       string  `json:"name,omitempty"`
	Value      string  `json:"value"`
	Confidence float32 `json:"confidence"`
}

// ModelInfo describes one recognition variant in the /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Loaded  bool   `json:"loaded"`
}

// ModelList is the /v1/models envelope.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// ResponseError is the error payload nested under "error" in failure
// responses.
type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
