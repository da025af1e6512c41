package wshandshake

import (
	"bytes"
	"strings"
)

const (
	HeaderHost       = "Host"
	HeaderUpgrade    = "Upgrade"
	HeaderConnection = "Connection"
	HeaderKey        = "Sec-WebSocket-Key"
	HeaderVersion    = "Sec-WebSocket-Version"
	HeaderAccept     = "Sec-WebSocket-Accept"
	HeaderExtensions = "Sec-WebSocket-Extensions"
	HeaderProtocol   = "Sec-WebSocket-Protocol"
)

// Handshake header section.
//
// Header names are case-insensitive. Sec-WebSocket-Extensions and Sec-WebSocket-Protocol can be
// repeated: their comma separated items are collected, in order, into lists. Other headers are
// singletons: a repeated header has its values joined with ",".
type Header struct {
	// Values of singleton headers indexed by lower-case name
	values map[string]string
	// Header names as first seen, in order of appearance
	names []string
	// Extension offers/agreements in order
	extensions []string
	// Subprotocols in order
	protocols []string
}

// Factory which creates an empty header section.
func NewHeader() *Header {
	return &Header{values: map[string]string{}}
}

// # Description
//
// Add a header. Extension and protocol headers are split on commas and appended to their lists.
// Other headers are stored as singletons, a repeated name has its value appended after a comma.
func (h *Header) Add(name string, value string) {
	value = strings.TrimSpace(value)
	key := strings.ToLower(name)
	switch key {
	case "sec-websocket-extensions":
		h.extensions = append(h.extensions, splitList(value)...)
		return
	case "sec-websocket-protocol":
		h.protocols = append(h.protocols, splitList(value)...)
		return
	}
	if prev, ok := h.values[key]; ok {
		h.values[key] = prev + "," + value
		return
	}
	h.values[key] = value
	h.names = append(h.names, name)
}

// Value of a singleton header, empty if absent.
func (h *Header) Get(name string) string {
	if h == nil {
		return ""
	}
	return h.values[strings.ToLower(name)]
}

// Whether a singleton header is present.
func (h *Header) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h.values[strings.ToLower(name)]
	return ok
}

// Ordered list of Sec-WebSocket-Extensions items.
func (h *Header) Extensions() []string {
	if h == nil {
		return nil
	}
	return h.extensions
}

// Ordered list of Sec-WebSocket-Protocol items.
func (h *Header) Protocols() []string {
	if h == nil {
		return nil
	}
	return h.protocols
}

// Call fn for every singleton header in order of appearance.
func (h *Header) Each(fn func(name string, value string)) {
	if h == nil {
		return
	}
	for _, name := range h.names {
		fn(name, h.values[strings.ToLower(name)])
	}
}

// Returns true if the comma separated header value contains token (case-insensitive).
func ContainsToken(value string, token string) bool {
	for _, item := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(item), token) {
			return true
		}
	}
	return false
}

// Split a comma separated list, ignoring commas inside quoted strings and dropping empty items.
func splitList(value string) []string {
	var items []string
	start := 0
	quoted := false
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				if item := strings.TrimSpace(value[start:i]); item != "" {
					items = append(items, item)
				}
				start = i + 1
			}
		}
	}
	if item := strings.TrimSpace(value[start:]); item != "" {
		items = append(items, item)
	}
	return items
}

// # Description
//
// Split the head of a handshake (start line + header lines, CRLF separated, terminated by an
// empty line) into its start line and header section.
func parseHead(head []byte) (string, *Header, error) {
	head = bytes.TrimSuffix(head, []byte("\r\n\r\n"))
	lines := strings.Split(string(head), "\r\n")
	header := NewHeader()
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			// Obsolete line folding is not supported
			return "", nil, ErrMalformedHeader
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return "", nil, ErrMalformedHeader
		}
		header.Add(name, value)
	}
	return lines[0], header, nil
}
