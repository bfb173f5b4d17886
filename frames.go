package orchestrator

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Outbound frame envelopes. The Live API accepts exactly one top-level key
// per frame: "setup" during the handshake, "realtimeInput" afterwards.

type setupFrame struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string            `json:"model"`
	GenerationConfig  generationConfig  `json:"generationConfig"`
	SystemInstruction systemInstruction `json:"systemInstruction"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []contentText `json:"parts"`
}

type contentText struct {
	Text string `json:"text"`
}

type realtimeInputFrame struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Text        string       `json:"text,omitempty"`
	MediaChunks []mediaChunk `json:"mediaChunks,omitempty"`
}

type mediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

func newSetupFrame(model, voice, instructions string) *setupFrame {
	return &setupFrame{
		Setup: setupPayload{
			Model: model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
					},
				},
			},
			SystemInstruction: systemInstruction{
				Parts: []contentText{{Text: instructions}},
			},
		},
	}
}

func newTextFrame(text string) *realtimeInputFrame {
	return &realtimeInputFrame{RealtimeInput: realtimeInput{Text: text}}
}

func newMediaChunkFrame(mimeType, base64Data string) *realtimeInputFrame {
	return &realtimeInputFrame{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{MimeType: mimeType, Data: base64Data}},
		},
	}
}

func marshalFrame(frame any) ([]byte, error) {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshaling frame: %w", err)
	}
	return data, nil
}

// Inbound frames. Fields are not mutually exclusive within one frame and
// their arrival order is not guaranteed by the remote.

type serverFrame struct {
	SetupComplete bool           `json:"setupComplete"`
	ServerContent *serverContent `json:"serverContent"`
}

type serverContent struct {
	ModelTurn          *modelTurn `json:"modelTurn"`
	TurnComplete       bool       `json:"turnComplete"`
	Interrupted        bool       `json:"interrupted"`
	GenerationComplete bool       `json:"generationComplete"`
}

type modelTurn struct {
	Parts []contentPart `json:"parts"`
}

type contentPart struct {
	InlineData *inlineData `json:"inlineData"`
	Text       string      `json:"text"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

func parseServerFrame(data []byte) (*serverFrame, error) {
	frame := new(serverFrame)
	if err := sonic.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("unmarshaling server frame: %w", err)
	}
	return frame, nil
}
