package tools

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateLineSignature(t *testing.T) {
	secret := "channel-secret"
	body := []byte(`{"events":[]}`)

	if !ValidateLineSignature(secret, body, sign(secret, body)) {
		t.Error("valid signature rejected")
	}
	if ValidateLineSignature(secret, body, sign("other-secret", body)) {
		t.Error("signature from wrong secret accepted")
	}
	if ValidateLineSignature(secret, []byte(`{"events":[{}]}`), sign(secret, body)) {
		t.Error("signature over different body accepted")
	}
	if ValidateLineSignature(secret, body, "") {
		t.Error("empty signature accepted")
	}
	if ValidateLineSignature("", body, sign("", body)) {
		t.Error("empty secret accepted")
	}
}
