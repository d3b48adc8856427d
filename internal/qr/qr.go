package qr

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	VerifyPath = "/verificar-documento"

	DefaultSize = 256
)

// VerificationURL is the public page a scanned code leads to.
func VerificationURL(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + VerifyPath + "?code=" + url.QueryEscape(code)
}

func PNG(content string, size int) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

func DataURL(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
