package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature_EmptySecretDisablesValidation(t *testing.T) {
	require.True(t, ValidateSignature("", []byte("payload"), "garbage"))
}

func TestValidateSignature_ValidSignatureAccepted(t *testing.T) {
	body := []byte(`{"action":"labeled"}`)
	header := sign("topsecret", body)
	require.True(t, ValidateSignature("topsecret", body, header))
}

func TestValidateSignature_WrongSecretRejected(t *testing.T) {
	body := []byte(`{"action":"labeled"}`)
	header := sign("topsecret", body)
	require.False(t, ValidateSignature("different", body, header))
}

func TestValidateSignature_TamperedBodyRejected(t *testing.T) {
	header := sign("topsecret", []byte(`{"action":"labeled"}`))
	require.False(t, ValidateSignature("topsecret", []byte(`{"action":"deleted"}`), header))
}

func TestValidateSignature_MissingPrefixRejected(t *testing.T) {
	require.False(t, ValidateSignature("topsecret", []byte("body"), "deadbeef"))
}

func TestValidateSignature_NonHexRejected(t *testing.T) {
	require.False(t, ValidateSignature("topsecret", []byte("body"), "sha256=not-hex"))
}
