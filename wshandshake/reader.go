package wshandshake

import (
	"bytes"
	"errors"
	"io"

	"github.com/gbdevw/gowsrfc/wsbuffer"
)

// Max. size of a handshake head (start line + headers + empty line)
const MaxHandshakeSize = 2048

// End of the header section
var headTerminator = []byte("\r\n\r\n")

// # Description
//
// Read the head of a handshake from r, accumulating bytes in acc until the CRLF CRLF terminator
// is found.
//
// Bytes read after the terminator (the first frames sent by an eager peer) are kept in acc so
// they can be decoded once the handshake completes.
//
// # Inputs
//
//   - r: Stream to read from
//   - acc: Accumulator receiving the bytes read from r. It should be empty.
//   - limit: Max. size of the head. 0 or less selects MaxHandshakeSize.
//
// # Returns
//
// A copy of the head, terminator included, or an error: ErrHandshakeTooLarge when the limit is
// reached without terminator, ErrIncompleteHandshake when the stream ends before the terminator,
// or the read error.
func ReadHandshake(r io.Reader, acc *wsbuffer.Accumulator, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = MaxHandshakeSize
	}
	scanned := 0
	var readErr error
	for {
		data := acc.Bytes()
		if idx := bytes.Index(data[scanned:], headTerminator); idx >= 0 {
			end := scanned + idx + len(headTerminator)
			if end > limit {
				return nil, ErrHandshakeTooLarge
			}
			head := bytes.Clone(data[:end])
			if err := acc.Shift(end); err != nil {
				return nil, err
			}
			return head, nil
		}
		if len(data) >= limit {
			return nil, ErrHandshakeTooLarge
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil, ErrIncompleteHandshake
			}
			return nil, readErr
		}
		// The terminator may straddle two reads
		if len(data) > len(headTerminator)-1 {
			scanned = len(data) - (len(headTerminator) - 1)
		}
		_, readErr = acc.Fill(r)
	}
}
