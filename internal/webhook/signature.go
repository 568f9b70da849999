package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// ValidateSignature проверяет X-Hub-Signature-256 над сырым телом запроса.
// Пустой secret отключает проверку (возвращает true всегда) — spec §6.
// Сравнение — константного времени, чтобы не утекать длину совпавшего
// префикса через тайминг.
func ValidateSignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	want, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	got := mac.Sum(nil)

	return subtle.ConstantTimeCompare(want, got) == 1
}
