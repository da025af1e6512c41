package wsconn

import "unicode/utf8"

// Incremental UTF-8 validator for text messages received in several fragments. A code point may
// straddle two fragments: its first bytes are carried over to the next call.
type utf8Validator struct {
	carry []byte
}

// # Description
//
// Validate the next chunk of a text message. final must be true for the last chunk.
//
// # Returns
//
// False as soon as the bytes seen so far cannot be the prefix of valid UTF-8 text, or when the
// final chunk ends with an incomplete code point.
func (v *utf8Validator) Write(chunk []byte, final bool) bool {
	data := chunk
	if len(v.carry) > 0 {
		data = append(v.carry, chunk...)
		v.carry = nil
	} else if utf8.Valid(chunk) {
		return true
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			rest := data[i:]
			if !final && !utf8.FullRune(rest) {
				v.carry = append([]byte(nil), rest...)
				return true
			}
			return false
		}
		i += size
	}
	return true
}

// Forget any carried bytes.
func (v *utf8Validator) Reset() {
	v.carry = nil
}
