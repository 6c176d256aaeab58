package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrBotNotFound          = errors.New("bot not found")
	ErrConversationNotFound = errors.New("invalid session")
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrMessageTooLong       = errors.New("message is too long")
	ErrTurnInProgress       = errors.New("a reply is already being generated")
	ErrCompletionFailed     = errors.New("failed to get AI response")
	ErrNoSpeakableText      = errors.New("no speakable text in reply")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

// ValidationError 携带逐字段的校验失败信息。
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
