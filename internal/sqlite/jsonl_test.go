package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

func TestReadJSONL_MissingFileIsEmpty(t *testing.T) {
	recs, err := readJSONL(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWriteJSONL_OneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), settingsJSONL)

	require.NoError(t, writeJSONL(path, []*types.Setting{
		{SettingID: 1, Key: "a", Value: "1"},
		{SettingID: 2, Key: "b", Value: "2"},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1,\"key\":\"a\",\"value\":\"1\"}\n{\"id\":2,\"key\":\"b\",\"value\":\"2\"}\n", string(data))

	got, err := decodeJSONL[types.Setting](path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Key)
}

func TestReadJSONL_SkipsBlankAndMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), usersJSONL)
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":1,\"email\":\"a@b\"}\n\nnot json\n{\"id\":2,\"email\":\"c@d\"}\n"), 0o644))

	recs, err := readJSONL(path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
