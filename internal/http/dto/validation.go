package dto

import (
	"fmt"
	"strings"
)

const maxPlaylistURLLength = 2048

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) ToMap() map[string]string {
	return map[string]string{e.Field: e.Message}
}

func ToMap(errs []ValidationError) map[string]string {
	result := make(map[string]string)
	for _, e := range errs {
		result[e.Field] = e.Message
	}
	return result
}

func ToResponse(errs []ValidationError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func validatePlaylistURL(v string) []ValidationError {
	var errs []ValidationError
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		errs = append(errs, ValidationError{Field: "playlistUrl", Message: "is required"})
	case len(v) > maxPlaylistURLLength:
		errs = append(errs, ValidationError{Field: "playlistUrl", Message: fmt.Sprintf("must be at most %d characters", maxPlaylistURLLength)})
	}
	return errs
}
