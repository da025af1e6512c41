package wsconn

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for incremental UTF-8 validation unit tests
type UTF8ValidatorUnitTestSuite struct {
	suite.Suite
}

// Run UTF8ValidatorUnitTestSuite test suite
func TestUTF8ValidatorUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UTF8ValidatorUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test validation of complete messages.
func (suite *UTF8ValidatorUnitTestSuite) TestSingleChunk() {
	v := &utf8Validator{}
	require.True(suite.T(), v.Write([]byte("héllo €"), true))
	require.True(suite.T(), v.Write([]byte{}, true))
	require.False(suite.T(), v.Write([]byte{0xff}, true))
	// Truncated code point in a final chunk
	require.False(suite.T(), v.Write([]byte{0xe2, 0x82}, true))
}

// Test a code point split between chunks is accepted.
func (suite *UTF8ValidatorUnitTestSuite) TestSplitCodePoint() {
	euro := []byte("€") // e2 82 ac
	v := &utf8Validator{}
	require.True(suite.T(), v.Write(append([]byte("price: "), euro[0]), false))
	require.True(suite.T(), v.Write(euro[1:2], false))
	require.True(suite.T(), v.Write(append(euro[2:], '!'), true))
}

// Test invalid sequences are detected as soon as possible.
func (suite *UTF8ValidatorUnitTestSuite) TestInvalidSequences() {
	v := &utf8Validator{}
	// Invalid byte in a non final chunk
	require.False(suite.T(), v.Write([]byte{'a', 0xff, 'b'}, false))
	// Carried prefix followed by an invalid continuation
	v.Reset()
	require.True(suite.T(), v.Write([]byte{0xc3}, false))
	require.False(suite.T(), v.Write([]byte{'A'}, true))
	// Carried prefix never completed
	v.Reset()
	require.True(suite.T(), v.Write([]byte{0xf0, 0x9f}, false))
	require.False(suite.T(), v.Write([]byte{}, true))
}
