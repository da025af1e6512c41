// Package wsext implements websocket extension and subprotocol negotiation and provides the
// permessage-deflate extension (RFC 7692).
package wsext

import (
	"errors"
	"strings"
)

// Returned when an extension item cannot be parsed
var ErrMalformedOffer = errors.New("malformed extension offer")

// Extension parameter (name[=value]).
type Param struct {
	Name     string
	Value    string
	HasValue bool
}

// An item of a Sec-WebSocket-Extensions header: an extension token with its parameters. Used for
// client offers as well as server responses.
type Offer struct {
	Name   string
	Params []Param
}

// # Description
//
// Parse a single Sec-WebSocket-Extensions item: 'name; param; param=value; param="value"'.
func ParseOffer(item string) (Offer, error) {
	parts := strings.Split(item, ";")
	name := strings.TrimSpace(parts[0])
	if name == "" || strings.ContainsAny(name, " \t=\"") {
		return Offer{}, ErrMalformedOffer
	}
	offer := Offer{Name: name}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pname, pvalue, hasValue := strings.Cut(part, "=")
		pname = strings.TrimSpace(pname)
		if pname == "" {
			return Offer{}, ErrMalformedOffer
		}
		if hasValue {
			pvalue = strings.Trim(strings.TrimSpace(pvalue), "\"")
		}
		offer.Params = append(offer.Params, Param{Name: pname, Value: pvalue, HasValue: hasValue})
	}
	return offer, nil
}

// Wire representation of the offer.
func (offer Offer) String() string {
	var sb strings.Builder
	sb.WriteString(offer.Name)
	for _, p := range offer.Params {
		sb.WriteString("; ")
		sb.WriteString(p.Name)
		if p.HasValue {
			sb.WriteString("=")
			sb.WriteString(p.Value)
		}
	}
	return sb.String()
}
