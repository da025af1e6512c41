package wsext

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gbdevw/gowsrfc/wsframe"
)

var (
	// Two agreed extensions occupy the same RSV bit
	ErrRsvConflict = errors.New("extensions occupy the same RSV bit")
	// Server selected an extension the client did not offer
	ErrUnexpectedExtension = errors.New("server selected an extension which was not offered")
	// Server selected the same extension twice
	ErrDuplicateExtension = errors.New("extension selected more than once")
	// Server selected a subprotocol the client did not offer
	ErrSubprotocolMismatch = errors.New("server selected a subprotocol which was not offered")
)

// Interface implemented by an extension which can be negotiated during the opening handshake.
type Factory interface {
	// Registered extension token
	Name() string
	// RSV bits occupied by the extension
	ReservedBits() wsframe.RsvBits
	// Offer sent by a client
	Offer() Offer
	// # Description
	//
	// Evaluate an offer received by a server.
	//
	// # Returns
	//
	// The negotiated extension and the response item to send back, or an error if the server
	// declines this offer.
	NegotiateAsServer(offer Offer) (wsframe.Extension, Offer, error)
	// # Description
	//
	// Evaluate the response item received by a client.
	//
	// # Returns
	//
	// The negotiated extension or an error if the response is not acceptable. The connection
	// must then be failed.
	NegotiateAsClient(response Offer) (wsframe.Extension, error)
}

// Find a factory by extension token (case-insensitive).
func findFactory(factories []Factory, name string) Factory {
	for _, f := range factories {
		if strings.EqualFold(f.Name(), name) {
			return f
		}
	}
	return nil
}

// Build the Sec-WebSocket-Extensions value a client sends for the provided factories.
func ClientOffers(factories []Factory) string {
	items := make([]string, 0, len(factories))
	for _, f := range factories {
		items = append(items, f.Offer().String())
	}
	return strings.Join(items, ", ")
}

// # Description
//
// Server side negotiation. Offers are evaluated in order: unknown or malformed offers and offers
// declined by their factory are skipped, only the first accepted offer of each extension is
// kept.
//
// # Inputs
//
//   - factories: Extensions supported by the server
//   - items: Sec-WebSocket-Extensions items received from the client, in order
//
// # Returns
//
// The agreed extensions in order, the Sec-WebSocket-Extensions value of the response (empty if
// none) and ErrRsvConflict if two agreed extensions occupy the same RSV bit.
func NegotiateAsServer(factories []Factory, items []string) ([]wsframe.Extension, string, error) {
	var agreed []wsframe.Extension
	var responses []string
	for _, item := range items {
		offer, err := ParseOffer(item)
		if err != nil {
			continue
		}
		f := findFactory(factories, offer.Name)
		if f == nil || containsExtension(agreed, f.Name()) {
			continue
		}
		ext, response, err := f.NegotiateAsServer(offer)
		if err != nil {
			continue
		}
		agreed = append(agreed, ext)
		responses = append(responses, response.String())
	}
	if err := CheckReservedBits(agreed); err != nil {
		return nil, "", err
	}
	return agreed, strings.Join(responses, ", "), nil
}

// # Description
//
// Client side negotiation. Every item of the server response must name an offered extension,
// at most once, with parameters accepted by its factory.
//
// # Returns
//
// The agreed extensions in the order chosen by the server or an error.
func NegotiateAsClient(factories []Factory, items []string) ([]wsframe.Extension, error) {
	var agreed []wsframe.Extension
	for _, item := range items {
		response, err := ParseOffer(item)
		if err != nil {
			return nil, err
		}
		f := findFactory(factories, response.Name)
		if f == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedExtension, response.Name)
		}
		if containsExtension(agreed, f.Name()) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateExtension, response.Name)
		}
		ext, err := f.NegotiateAsClient(response)
		if err != nil {
			return nil, err
		}
		agreed = append(agreed, ext)
	}
	if err := CheckReservedBits(agreed); err != nil {
		return nil, err
	}
	return agreed, nil
}

// Returns ErrRsvConflict if two extensions occupy the same RSV bit.
func CheckReservedBits(exts []wsframe.Extension) error {
	var used wsframe.RsvBits
	for _, ext := range exts {
		bits := ext.ReservedBits()
		if used&bits != 0 {
			return fmt.Errorf("%w: %s", ErrRsvConflict, ext.Name())
		}
		used |= bits
	}
	return nil
}

// Whether an extension with the provided name is in exts.
func containsExtension(exts []wsframe.Extension, name string) bool {
	for _, ext := range exts {
		if strings.EqualFold(ext.Name(), name) {
			return true
		}
	}
	return false
}

/*************************************************************************************************/
/* SUBPROTOCOLS                                                                                  */
/*************************************************************************************************/

// # Description
//
// Server side subprotocol selection: the first subprotocol of the client preference list which
// the server supports (case-insensitive). Returns an empty string if there is none.
func SelectSubprotocol(supported []string, offered []string) string {
	for _, candidate := range offered {
		for _, s := range supported {
			if strings.EqualFold(candidate, s) {
				return candidate
			}
		}
	}
	return ""
}

// # Description
//
// Client side subprotocol verification: the subprotocol chosen by the server must be one of the
// offered subprotocols (case-insensitive). An empty choice means no subprotocol and is accepted.
func VerifySubprotocol(offered []string, chosen []string) (string, error) {
	switch len(chosen) {
	case 0:
		return "", nil
	case 1:
		for _, o := range offered {
			if strings.EqualFold(o, chosen[0]) {
				return chosen[0], nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrSubprotocolMismatch, chosen[0])
	default:
		return "", fmt.Errorf("%w: server selected %d subprotocols", ErrSubprotocolMismatch, len(chosen))
	}
}
