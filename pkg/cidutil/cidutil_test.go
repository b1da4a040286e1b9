package cidutil

import (
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentIDOfEmptyInput(t *testing.T) {
	id, err := ContentID([]byte{})
	require.NoError(t, err)
	assert.Equal(t, "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku", id)
}

func TestContentIDIsRawV1(t *testing.T) {
	id, err := ContentID([]byte(`{"productName":"Beans"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "bafkrei"))

	decoded, err := cid.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), decoded.Version())
	assert.Equal(t, uint64(cid.Raw), decoded.Type())
}

func TestMatches(t *testing.T) {
	data := []byte(`{"productName":"Beans"}`)
	id, err := ContentID(data)
	require.NoError(t, err)

	ok, err := Matches(data, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches([]byte(`{"productName":"Beanz"}`), id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Matches(data, "not-a-cid")
	assert.Error(t, err)
}
