package client

import (
	"errors"
	"strings"
)

// messages maps anticipated error statuses to text shown to people.
var messages = map[string]string{
	"unauthenticated":   "No API token was sent. Check the token file.",
	"permission-denied": "The API token is invalid, expired or lacks permission to post updates.",
	"not-found":         "The project or update referenced by this request does not exist.",
	"invalid-argument":  "The update payload was rejected.",
	"internal":          "The server failed to process the update. Try again later.",
}

// FormatError renders err for a terminal. Known API statuses use the message
// table plus any field details; anything else is shown with its raw message.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "Error: " + err.Error()
	}
	msg, ok := messages[apiErr.Status]
	if !ok {
		return "Error: " + apiErr.Error()
	}
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(msg)
	if apiErr.Status == "invalid-argument" && len(apiErr.Details) == 0 && apiErr.Message != "" {
		b.WriteString("\n  ")
		b.WriteString(apiErr.Message)
	}
	for _, d := range apiErr.Details {
		b.WriteString("\n  ")
		if d.Field != "" {
			b.WriteString(d.Field)
			b.WriteString(": ")
		}
		b.WriteString(d.Reason)
	}
	return b.String()
}
