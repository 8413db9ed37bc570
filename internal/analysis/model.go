package analysis

// Analysis terminal statuses surfaced to callers.
const (
	StatusSuccess       = "success"
	StatusError         = "error"
	StatusNotConfigured = "not_configured"
)

// ExtractedField is one named value produced by the document-understanding
// provider, with an optional confidence score in [0,1].
type ExtractedField struct {
	FieldName  string   `json:"field_name"`
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// Result is the response envelope for one analysis invocation. The status
// field is the error channel: Analyze never returns a Go error.
type Result struct {
	DocumentID   string           `json:"document_id"`
	Fields       []ExtractedField `json:"fields"`
	Status       string           `json:"status"`
	ErrorMessage *string          `json:"error_message"`
	RawResult    map[string]any   `json:"raw_result"`
}

func errorResult(documentID, message string) Result {
	return Result{
		DocumentID:   documentID,
		Fields:       []ExtractedField{},
		Status:       StatusError,
		ErrorMessage: &message,
	}
}
