package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
)

// SignatureHeader carries "sha256=<hex hmac of raw body>".
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks header against HMAC-SHA256(secret, body). An empty
// secret rejects every request.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return fmt.Errorf("%w: app secret not configured", domain.ErrAuthentication)
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%w: missing %s", domain.ErrAuthentication, SignatureHeader)
	}
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return fmt.Errorf("%w: invalid %s format", domain.ErrAuthentication, SignatureHeader)
	}
	provided, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", domain.ErrAuthentication)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrAuthentication)
	}
	return nil
}

// Sign returns the header value for body. Used by tests and the CLI.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
