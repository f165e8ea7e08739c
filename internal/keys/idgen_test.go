package keys

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"secure-pastebox/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID_Format(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := GenerateID()
		require.NoError(t, err)
		assert.Len(t, id, constants.KeyIDLength)
		assert.True(t, ValidID(id), id)
		seen[id] = struct{}{}
	}
	// 約 47 bits 熵，一千次內不應碰撞
	assert.Len(t, seen, 1000)
}

func TestGenerateIDFrom_RejectsBiasedBytes(t *testing.T) {
	// 248 以上的位元組會被丟棄，接著的 0..7 對應 "01234567"
	source := append(bytes.Repeat([]byte{255, 248}, 8), 0, 1, 2, 3, 4, 5, 6, 7)
	source = append(source, make([]byte, 64)...)

	id, err := GenerateIDFrom(bytes.NewReader(source))
	require.NoError(t, err)
	assert.Equal(t, "01234567", id)
}

func TestGenerateIDFrom_MapsWholeAlphabet(t *testing.T) {
	source := []byte{61, 61 + 62, 61 + 124, 61 + 186, 10, 36, 0, 35}
	source = append(source, make([]byte, 8)...)

	id, err := GenerateIDFrom(bytes.NewReader(source))
	require.NoError(t, err)
	assert.Equal(t, "ZZZZaA0z", id)
}

func TestGenerateIDFrom_EntropyFailure(t *testing.T) {
	_, err := GenerateIDFrom(iotest.ErrReader(errors.New("no entropy")))
	assert.ErrorIs(t, err, ErrEntropy)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("AbCd0129"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("short"))
	assert.False(t, ValidID("toolong123"))
	assert.False(t, ValidID("abc-1234"))
	assert.False(t, ValidID(".keyring"))
	assert.False(t, ValidID(strings.Repeat("é", 4)))
}
