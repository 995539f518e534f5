package webhook

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encryptForLark(t *testing.T, key string, plain []byte) string {
	t.Helper()
	k := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(k[:])
	require.NoError(t, err)

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	iv := bytes.Repeat([]byte{7}, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(append(iv, out...))
}

func TestLarkVerifier_Challenge(t *testing.T) {
	v := NewLarkVerifier("vtoken", "", zap.NewNop())

	cb, err := v.DecodeLarkCallback([]byte(`{"type":"url_verification","challenge":"xyz","token":"vtoken"}`))
	require.NoError(t, err)
	assert.Equal(t, "xyz", cb.Challenge)

	_, err = v.DecodeLarkCallback([]byte(`{"type":"url_verification","challenge":"xyz","token":"wrong"}`))
	assert.Error(t, err)
}

func TestLarkVerifier_LegacyCardAction(t *testing.T) {
	v := NewLarkVerifier("vtoken", "", zap.NewNop())
	body := `{"open_id":"ou_1","open_message_id":"om_1","open_chat_id":"oc_1","token":"vtoken","action":{"tag":"button","value":{"token":"reject:A1"}}}`

	cb, err := v.DecodeLarkCallback([]byte(body))
	require.NoError(t, err)

	press, ok := cb.Update.(ButtonPress)
	require.True(t, ok)
	assert.Equal(t, ActionReject, press.Action)
	assert.Equal(t, "A1", press.ApprovalID)
	assert.Equal(t, "ou_1", press.Responder.Recipient)
	assert.Equal(t, "om_1", press.MessageID)
	assert.Equal(t, "lark:om_1:ou_1", press.Key())
}

func TestLarkVerifier_EncryptedEvent(t *testing.T) {
	v := NewLarkVerifier("vtoken", "encrypt-key", zap.NewNop())
	plain := []byte(`{"schema":"2.0","header":{"event_id":"ev1","event_type":"card.action.trigger","token":"vtoken"},"event":{"operator":{"open_id":"ou_2"},"action":{"tag":"button","value":{"token":"approve:A9"}},"context":{"open_message_id":"om_2","open_chat_id":"oc_2"}}}`)
	body := []byte(`{"encrypt":"` + encryptForLark(t, "encrypt-key", plain) + `"}`)

	cb, err := v.DecodeLarkCallback(body)
	require.NoError(t, err)

	press, ok := cb.Update.(ButtonPress)
	require.True(t, ok)
	assert.Equal(t, ActionApprove, press.Action)
	assert.Equal(t, "A9", press.ApprovalID)
	assert.Equal(t, "ou_2", press.Responder.Recipient)
	assert.Equal(t, "lark:ev1", press.Key())
}

func TestLarkVerifier_RejectsWrongToken(t *testing.T) {
	v := NewLarkVerifier("vtoken", "", zap.NewNop())
	body := `{"open_id":"ou_1","token":"nope","action":{"value":{"token":"approve:A1"}}}`

	_, err := v.DecodeLarkCallback([]byte(body))
	assert.Error(t, err)
}

func TestLarkVerifier_UnknownAction(t *testing.T) {
	v := NewLarkVerifier("", "", zap.NewNop())
	cb, err := v.DecodeLarkCallback([]byte(`{"open_id":"ou_1","action":{"value":{"foo":"bar"}}}`))
	require.NoError(t, err)
	assert.IsType(t, Unrecognized{}, cb.Update)
}

func TestLarkVerifier_VerifySignature(t *testing.T) {
	v := NewLarkVerifier("", "key", zap.NewNop())
	body := []byte(`{"a":1}`)
	sum := sha256.Sum256([]byte("ts" + "nonce" + "key" + string(body)))

	assert.True(t, v.VerifySignature("ts", "nonce", hex.EncodeToString(sum[:]), body))
	assert.False(t, v.VerifySignature("ts", "nonce", "deadbeef", body))

	open := NewLarkVerifier("", "", zap.NewNop())
	assert.True(t, open.VerifySignature("ts", "nonce", "anything", body))
}
