package wshandshake

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
)

const (
	// GUID appended to the key to compute Sec-WebSocket-Accept
	acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	// The only protocol version defined by RFC 6455
	SupportedVersion = "13"
)

// Generate a fresh Sec-WebSocket-Key: base64 encoding of 16 random bytes.
func NewSecWebSocketKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// Compute the Sec-WebSocket-Accept value for a key: base64(SHA1(key + GUID)).
func ComputeAcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
