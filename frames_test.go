package orchestrator

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFrameShape(t *testing.T) {
	data, err := marshalFrame(newSetupFrame("models/test-model", "Puck", "be nice"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1, "setup must be the only top-level key")

	setup := decoded["setup"].(map[string]any)
	assert.Equal(t, "models/test-model", setup["model"])

	gen := setup["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, gen["responseModalities"])
	voice := gen["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)
	assert.Equal(t, "Puck", voice["voiceName"])

	parts := setup["systemInstruction"].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 1)
	assert.Equal(t, "be nice", parts[0].(map[string]any)["text"])
}

func TestTextFrameShape(t *testing.T) {
	data, err := marshalFrame(newTextFrame("hello"))
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	input := decoded["realtimeInput"]
	assert.Equal(t, "hello", input["text"])
	assert.NotContains(t, input, "mediaChunks")
}

func TestMediaChunkFrameShape(t *testing.T) {
	data, err := marshalFrame(newMediaChunkFrame("audio/pcm;rate=16000", "AAEC"))
	require.NoError(t, err)

	var decoded map[string]map[string][]map[string]string
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	chunks := decoded["realtimeInput"]["mediaChunks"]
	require.Len(t, chunks, 1)
	assert.Equal(t, "audio/pcm;rate=16000", chunks[0]["mimeType"])
	assert.Equal(t, "AAEC", chunks[0]["data"])
}

func TestParseServerFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, f *serverFrame)
	}{
		{
			name: "setup complete",
			raw:  `{"setupComplete":true}`,
			check: func(t *testing.T, f *serverFrame) {
				assert.True(t, f.SetupComplete)
				assert.Nil(t, f.ServerContent)
			},
		},
		{
			name: "audio part",
			raw:  `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"aGk="}}]}}}`,
			check: func(t *testing.T, f *serverFrame) {
				require.NotNil(t, f.ServerContent)
				require.NotNil(t, f.ServerContent.ModelTurn)
				require.Len(t, f.ServerContent.ModelTurn.Parts, 1)
				inline := f.ServerContent.ModelTurn.Parts[0].InlineData
				require.NotNil(t, inline)
				assert.Equal(t, "audio/pcm", inline.MimeType)
				assert.Equal(t, "aGk=", inline.Data)
			},
		},
		{
			name: "text and turn complete in one frame",
			raw:  `{"serverContent":{"modelTurn":{"parts":[{"text":"done"}]},"turnComplete":true}}`,
			check: func(t *testing.T, f *serverFrame) {
				assert.Equal(t, "done", f.ServerContent.ModelTurn.Parts[0].Text)
				assert.True(t, f.ServerContent.TurnComplete)
			},
		},
		{
			name: "interrupted",
			raw:  `{"serverContent":{"interrupted":true}}`,
			check: func(t *testing.T, f *serverFrame) {
				assert.True(t, f.ServerContent.Interrupted)
			},
		},
		{
			name:    "not json",
			raw:     `setup complete`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := parseServerFrame([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, frame)
		})
	}
}
