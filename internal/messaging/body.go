package messaging

import "maps"

// Error codes carried by error bodies.
const (
	ErrorTypeName = "Error"

	AttrErrorCode    = "code"
	AttrErrorMessage = "message"

	CodeNotFound               = "request.destination.notfound"
	CodeUnsupportedMessageType = "UnsupportedMessageType"
	CodeInvalidRequest         = "request.invalid"
)

// Body is the typed payload of a message.
type Body struct {
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// NewBody returns a body of the given type carrying a copy of attrs.
func NewBody(messageType string, attrs map[string]any) Body {
	var copied map[string]any
	if len(attrs) > 0 {
		copied = maps.Clone(attrs)
	}
	return Body{Type: messageType, Attributes: copied}
}

// Attr returns a single attribute value.
func (b Body) Attr(name string) (any, bool) {
	v, ok := b.Attributes[name]
	return v, ok
}

// StringAttr returns an attribute as a string, or "" when absent or not a string.
func (b Body) StringAttr(name string) string {
	v, _ := b.Attributes[name].(string)
	return v
}

// IsError reports whether the body is an error body.
func (b Body) IsError() bool {
	return b.Type == ErrorTypeName
}

// ErrorBody builds an error body with the given code and message.
func ErrorBody(code, message string) Body {
	return Body{
		Type: ErrorTypeName,
		Attributes: map[string]any{
			AttrErrorCode:    code,
			AttrErrorMessage: message,
		},
	}
}

// NotFound builds the error body sent when a destination does not exist.
func NotFound(addr Address) Body {
	return ErrorBody(CodeNotFound, "destination not found: "+addr.String())
}

// UnsupportedMessageType builds the error body for an unhandled request type.
func UnsupportedMessageType(messageType string) Body {
	return ErrorBody(CodeUnsupportedMessageType, "unsupported message type: "+messageType)
}
