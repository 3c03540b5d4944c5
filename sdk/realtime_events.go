package englify

import (
	"encoding/json"
	"strings"
)

// eventKind is the normalized inbound event discriminator.
type eventKind string

const (
	eventSessionCreated      eventKind = "session-created"
	eventAssistantMessage    eventKind = "assistant-message"
	eventUserTranscript      eventKind = "transcription-completed"
	eventAssistantTranscript eventKind = "audio-transcript-done"
	eventSpeechStarted       eventKind = "speech-started"
	eventSpeechStopped       eventKind = "speech-stopped"
	eventError               eventKind = "error"
	eventUnknown             eventKind = "unknown"
)

// inboundEvent is one decoded control-channel event, reduced to the fields
// the session machine acts on.
type inboundEvent struct {
	Kind      eventKind
	RawType   string
	SessionID string
	Text      string
	ErrorMsg  string
}

// rawEvent covers every inbound wire shape we recognize. The remote protocol
// nests message text differently per event type, so decoding probes each
// known location.
type rawEvent struct {
	Type    string `json:"type"`
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
	Transcript string `json:"transcript"`
	Item       struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	} `json:"item"`
	Response struct {
		Output []struct {
			Role    string        `json:"role"`
			Content []contentPart `json:"content"`
		} `json:"output"`
	} `json:"response"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

type contentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
}

func (p contentPart) value() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Transcript
}

// decodeInboundEvent normalizes one wire event. Unknown types decode to
// eventUnknown rather than an error; only malformed JSON fails.
func decodeInboundEvent(raw []byte) (*inboundEvent, error) {
	var e rawEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}

	ev := &inboundEvent{Kind: eventUnknown, RawType: e.Type}
	switch e.Type {
	case "session.created":
		ev.Kind = eventSessionCreated
		ev.SessionID = e.Session.ID

	case "conversation.item.created":
		if e.Item.Role == "assistant" {
			ev.Kind = eventAssistantMessage
			ev.Text = joinParts(e.Item.Content)
		}

	case "response.done":
		for _, out := range e.Response.Output {
			if out.Role != "assistant" {
				continue
			}
			if text := joinParts(out.Content); text != "" {
				ev.Kind = eventAssistantMessage
				ev.Text = text
				break
			}
		}

	case "conversation.item.input_audio_transcription.completed":
		ev.Kind = eventUserTranscript
		ev.Text = e.Transcript

	case "response.audio_transcript.done":
		ev.Kind = eventAssistantTranscript
		ev.Text = e.Transcript

	case "input_audio_buffer.speech_started":
		ev.Kind = eventSpeechStarted

	case "input_audio_buffer.speech_stopped":
		ev.Kind = eventSpeechStopped

	case "error":
		ev.Kind = eventError
		ev.ErrorMsg = e.Error.Message
		if ev.ErrorMsg == "" {
			ev.ErrorMsg = e.Message
		}
	}
	return ev, nil
}

func joinParts(parts []contentPart) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.value())
	}
	return strings.TrimSpace(b.String())
}

// SessionConfig is the session configuration pushed after session.created.
type SessionConfig struct {
	Modalities         []string `json:"modalities"`
	Instructions       string   `json:"instructions"`
	Voice              string   `json:"voice"`
	TranscriptionModel string   `json:"-"`
	NoiseReduction     string   `json:"-"`
}

// outbound control message shapes.

type sessionUpdateEvent struct {
	Type    string             `json:"type"`
	Session sessionUpdateInner `json:"session"`
}

type sessionUpdateInner struct {
	Modalities              []string            `json:"modalities,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	Voice                   string              `json:"voice,omitempty"`
	InputAudioTranscription *transcriptionConf  `json:"input_audio_transcription,omitempty"`
	InputAudioNoiseRed      *noiseReductionConf `json:"input_audio_noise_reduction,omitempty"`
}

type transcriptionConf struct {
	Model string `json:"model"`
}

type noiseReductionConf struct {
	Type string `json:"type"`
}

type itemCreateEvent struct {
	Type string       `json:"type"`
	Item outboundItem `json:"item"`
}

type outboundItem struct {
	Type    string                `json:"type"`
	Role    string                `json:"role"`
	Content []outboundContentPart `json:"content"`
}

type outboundContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreateEvent struct {
	Type string `json:"type"`
}

func encodeSessionUpdate(cfg SessionConfig) ([]byte, error) {
	msg := sessionUpdateEvent{
		Type: "session.update",
		Session: sessionUpdateInner{
			Modalities:   cfg.Modalities,
			Instructions: cfg.Instructions,
			Voice:        cfg.Voice,
		},
	}
	if cfg.TranscriptionModel != "" {
		msg.Session.InputAudioTranscription = &transcriptionConf{Model: cfg.TranscriptionModel}
	}
	if cfg.NoiseReduction != "" {
		msg.Session.InputAudioNoiseRed = &noiseReductionConf{Type: cfg.NoiseReduction}
	}
	return json.Marshal(msg)
}

func encodeItemCreate(role, text string) ([]byte, error) {
	return json.Marshal(itemCreateEvent{
		Type: "conversation.item.create",
		Item: outboundItem{
			Type:    "message",
			Role:    role,
			Content: []outboundContentPart{{Type: "input_text", Text: text}},
		},
	})
}

func encodeResponseCreate() ([]byte, error) {
	return json.Marshal(responseCreateEvent{Type: "response.create"})
}
