package tools

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ValidateLineSignature checks the X-Line-Signature header against the raw
// request body. The header carries base64(HMAC-SHA256(channelSecret, body)).
func ValidateLineSignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
