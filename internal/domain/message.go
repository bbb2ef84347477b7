package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// legacyRoleAssistant is how older message logs tagged assistant replies.
const legacyRoleAssistant = "gpt"

// MessageKind is the wire tag of a message body.
type MessageKind string

const (
	MessageKindAudio       MessageKind = "audio"
	MessageKindText        MessageKind = "text"
	MessageKindTranslation MessageKind = "translation"
)

// Body is the variant part of a message. The set of implementations is
// closed: AudioBody, TextBody and TranslationBody.
type Body interface {
	Kind() MessageKind
	sealed()
}

// AudioBody is a recorded clip.
type AudioBody struct {
	Handle string
}

// TextBody is typed user text or an assistant reply. Speech overrides the
// text handed to speech synthesis when set.
type TextBody struct {
	Text   string
	Speech *string
}

// TranslationBody is a translated reply together with its source text.
type TranslationBody struct {
	Text         string
	OriginalText string
	SourceLang   string
	TargetLang   string
}

func (AudioBody) Kind() MessageKind       { return MessageKindAudio }
func (TextBody) Kind() MessageKind        { return MessageKindText }
func (TranslationBody) Kind() MessageKind { return MessageKindTranslation }

func (AudioBody) sealed()       {}
func (TextBody) sealed()        {}
func (TranslationBody) sealed() {}

// Message is one entry in the conversation log.
type Message struct {
	ID        string
	Role      Role
	Body      Body
	Timestamp string
	QueryType *string
	Data      json.RawMessage

	// absent marks body fields a decoded record did not carry, so an
	// unchanged empty value is written back as absent.
	absent absentFields
}

type absentFields uint8

const (
	absentContent absentFields = 1 << iota
	absentHandle
	absentOriginalText
	absentSourceLang
	absentTargetLang
)

// Kind returns the body tag, or "" for a message without a body.
func (m Message) Kind() MessageKind {
	if m.Body == nil {
		return ""
	}
	return m.Body.Kind()
}

// Content is the rendered text of the message; audio messages have none.
func (m Message) Content() string {
	switch body := m.Body.(type) {
	case TextBody:
		return body.Text
	case TranslationBody:
		return body.Text
	case AudioBody:
		return ""
	default:
		return ""
	}
}

// AudioHandle returns the clip handle of an audio message.
func (m Message) AudioHandle() (string, bool) {
	body, ok := m.Body.(AudioBody)
	if !ok {
		return "", false
	}
	return body.Handle, true
}

// SpeechText is the text synthesized when an assistant message is played.
func (m Message) SpeechText() string {
	switch body := m.Body.(type) {
	case TextBody:
		if body.Speech != nil {
			return *body.Speech
		}
		return body.Text
	case TranslationBody:
		return body.Text
	case AudioBody:
		return ""
	default:
		return ""
	}
}

// NewUserAudio builds the user message that records a captured clip.
func NewUserAudio(id string, handle string, timestamp string) Message {
	return Message{ID: id, Role: RoleUser, Body: AudioBody{Handle: handle}, Timestamp: timestamp}
}

// NewUserText builds a typed user message.
func NewUserText(id string, text string, timestamp string) Message {
	return Message{ID: id, Role: RoleUser, Body: TextBody{Text: text}, Timestamp: timestamp}
}

// NewAssistantText builds an assistant reply that is spoken as written.
func NewAssistantText(id string, text string, timestamp string) Message {
	speech := text
	return Message{ID: id, Role: RoleAssistant, Body: TextBody{Text: text, Speech: &speech}, Timestamp: timestamp}
}

// NewTranslation builds a translated assistant reply.
func NewTranslation(id string, original string, translated string, source string, target string, timestamp string) Message {
	return Message{
		ID:   id,
		Role: RoleAssistant,
		Body: TranslationBody{
			Text:         translated,
			OriginalText: original,
			SourceLang:   source,
			TargetLang:   target,
		},
		Timestamp: timestamp,
	}
}

type wireMessage struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	MessageType       MessageKind     `json:"messageType"`
	Content           *string         `json:"content,omitempty"`
	AudioHandle       *string         `json:"audioHandle,omitempty"`
	SynthesizableText *string         `json:"synthesizableText,omitempty"`
	AudioURI          *string         `json:"audioUri,omitempty"`
	OriginalText      *string         `json:"originalText,omitempty"`
	SourceLang        *string         `json:"sourceLang,omitempty"`
	TargetLang        *string         `json:"targetLang,omitempty"`
	Timestamp         string          `json:"timestamp"`
	Data              json.RawMessage `json:"data,omitempty"`
	QueryType         *string         `json:"queryType,omitempty"`
}

// MarshalJSON writes the persisted message format.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{
		ID:        m.ID,
		Type:      string(m.Role),
		Timestamp: m.Timestamp,
		Data:      m.Data,
		QueryType: m.QueryType,
	}

	switch body := m.Body.(type) {
	case AudioBody:
		wire.MessageType = MessageKindAudio
		wire.AudioHandle = m.field(absentHandle, body.Handle)
	case TextBody:
		wire.MessageType = MessageKindText
		wire.Content = m.field(absentContent, body.Text)
		wire.SynthesizableText = body.Speech
	case TranslationBody:
		wire.MessageType = MessageKindTranslation
		wire.Content = m.field(absentContent, body.Text)
		wire.OriginalText = m.field(absentOriginalText, body.OriginalText)
		wire.SourceLang = m.field(absentSourceLang, body.SourceLang)
		wire.TargetLang = m.field(absentTargetLang, body.TargetLang)
	case nil:
		return nil, fmt.Errorf("message %q has no body", m.ID)
	default:
		return nil, fmt.Errorf("message %q has unknown body %T", m.ID, body)
	}

	return json.Marshal(wire)
}

// UnmarshalJSON reads the persisted message format, including logs written
// before audioHandle/synthesizableText replaced the overloaded audioUri.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	role, err := parseRole(wire.Type)
	if err != nil {
		return fmt.Errorf("message %q: %w", wire.ID, err)
	}

	var body Body
	var absent absentFields
	switch wire.MessageType {
	case MessageKindAudio:
		handle := wire.AudioHandle
		if handle == nil {
			handle = wire.AudioURI
		}
		absent = markAbsent(handle, absentHandle)
		body = AudioBody{Handle: deref(handle)}
	case MessageKindText:
		speech := wire.SynthesizableText
		if speech == nil && role == RoleAssistant {
			speech = wire.AudioURI
		}
		absent = markAbsent(wire.Content, absentContent)
		body = TextBody{Text: deref(wire.Content), Speech: speech}
	case MessageKindTranslation:
		absent = markAbsent(wire.Content, absentContent) |
			markAbsent(wire.OriginalText, absentOriginalText) |
			markAbsent(wire.SourceLang, absentSourceLang) |
			markAbsent(wire.TargetLang, absentTargetLang)
		body = TranslationBody{
			Text:         deref(wire.Content),
			OriginalText: deref(wire.OriginalText),
			SourceLang:   deref(wire.SourceLang),
			TargetLang:   deref(wire.TargetLang),
		}
	default:
		return fmt.Errorf("message %q: unknown messageType %q", wire.ID, wire.MessageType)
	}

	*m = Message{
		ID:        wire.ID,
		Role:      role,
		Body:      body,
		Timestamp: wire.Timestamp,
		QueryType: wire.QueryType,
		Data:      wire.Data,
		absent:    absent,
	}
	return nil
}

// field renders a body field, omitting it when it was absent on decode and
// is still empty.
func (m Message) field(flag absentFields, value string) *string {
	if m.absent&flag != 0 && value == "" {
		return nil
	}
	return stringPtr(value)
}

func markAbsent(value *string, flag absentFields) absentFields {
	if value == nil {
		return flag
	}
	return 0
}

func parseRole(value string) (Role, error) {
	switch value {
	case string(RoleUser):
		return RoleUser, nil
	case string(RoleAssistant), legacyRoleAssistant:
		return RoleAssistant, nil
	default:
		return "", errors.New("unknown message type " + value)
	}
}

func stringPtr(value string) *string {
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
