package lifecycle

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const verificationCodeLength = 8

// newVerificationCode returns an upper-case 8 character code and a PNG data
// URL of its QR rendering.
func newVerificationCode() (string, string, error) {
	code := strings.ToUpper(uuid.NewString()[:verificationCodeLength])

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", "", fmt.Errorf("render qr code: %w", err)
	}
	return code, "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// codeMatches compares case-insensitively. Lengths leak, contents don't.
func codeMatches(stored, supplied string) bool {
	a := []byte(strings.ToUpper(strings.TrimSpace(supplied)))
	b := []byte(strings.ToUpper(stored))
	return subtle.ConstantTimeCompare(a, b) == 1
}
