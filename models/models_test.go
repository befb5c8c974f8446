package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceResponseDecode(t *testing.T) {
	t.Run("all fields absent", func(t *testing.T) {
		var r VoiceResponse
		require.NoError(t, json.Unmarshal([]byte(`{}`), &r))
		assert.Nil(t, r.Status)
		assert.Nil(t, r.Result)
		assert.Nil(t, r.Error)
		assert.Nil(t, r.Rules)
		assert.Nil(t, r.Deleted)
	})

	t.Run("explicit nulls", func(t *testing.T) {
		var r VoiceResponse
		require.NoError(t, json.Unmarshal([]byte(`{"status":null,"result":null,"rules":null,"error":"bad ip"}`), &r))
		assert.Nil(t, r.Status)
		assert.Nil(t, r.Result)
		require.NotNil(t, r.Error)
		assert.Equal(t, "bad ip", *r.Error)
	})

	t.Run("rule arrays", func(t *testing.T) {
		var r VoiceResponse
		body := `{"status":"unblocked_all","deleted":[{"ip":"1.2.3.4","port":"22"},{"type":"block","ip":"5.6.7.8","port":"80"}]}`
		require.NoError(t, json.Unmarshal([]byte(body), &r))
		require.Len(t, r.Deleted, 2)
		assert.Nil(t, r.Deleted[0].Type)
		assert.Equal(t, "1.2.3.4", *r.Deleted[0].IP)
		assert.Equal(t, "type=block ip=5.6.7.8 port=80", r.Deleted[1].String())
	})

	t.Run("rules as text listing", func(t *testing.T) {
		var r VoiceResponse
		require.NoError(t, json.Unmarshal([]byte(`{"status":"ok","rules":"block 1.2.3.4 22\n\n block 5.6.7.8 80 \n"}`), &r))
		require.Len(t, r.Rules, 2)
		assert.Equal(t, "block 1.2.3.4 22", r.Rules[0].Raw)
		assert.Equal(t, "block 5.6.7.8 80", r.Rules[1].String())
	})

	t.Run("ok envelope", func(t *testing.T) {
		var r VoiceResponse
		require.NoError(t, json.Unmarshal([]byte(`{"ok":{"status":"ok","result":"done"}}`), &r))
		require.NotNil(t, r.Result)
		assert.Equal(t, "done", *r.Result)
		assert.Equal(t, "ok", *r.Status)
	})

	t.Run("top level wins over envelope", func(t *testing.T) {
		var r VoiceResponse
		require.NoError(t, json.Unmarshal([]byte(`{"error":"unauthorized","ok":{"result":"ignored"}}`), &r))
		assert.Nil(t, r.Result)
		assert.Equal(t, "unauthorized", *r.Error)
	})

	t.Run("non-object envelope ignored", func(t *testing.T) {
		var r VoiceResponse
		require.NoError(t, json.Unmarshal([]byte(`{"ok":true}`), &r))
		assert.Nil(t, r.Result)
		assert.Nil(t, r.Status)
	})

	t.Run("not an object", func(t *testing.T) {
		var r VoiceResponse
		assert.Error(t, json.Unmarshal([]byte(`["ok"]`), &r))
	})
}

func TestSenderText(t *testing.T) {
	for _, s := range []Sender{SenderUser, SenderServer, SenderError} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back Sender
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s Sender
	assert.Error(t, s.UnmarshalText([]byte("Robot")))
	assert.Equal(t, "You: block 1.2.3.4", TranscriptEntry{Sender: SenderUser, Text: "block 1.2.3.4"}.String())
}
