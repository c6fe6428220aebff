package dispatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogAppend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Logs")
	f := NewFileLog(dir)
	f.nowFn = func() time.Time { return time.Date(2013, 5, 7, 3, 4, 5, 0, time.Local) }

	entry := f.Entry("10.0.0.1", "47200", "Type:NETWORK_CONGESTION")
	assert.Equal(t, "[20130507_03:04:05] 10.0.0.1_47200: Type:NETWORK_CONGESTION", entry)

	require.NoError(t, f.Append("fail.log", entry))
	require.NoError(t, f.Append("fail.log", "second"))

	data, err := os.ReadFile(filepath.Join(dir, "fail.log"))
	require.NoError(t, err)
	assert.Equal(t, entry+"\nsecond\n", string(data))

	assert.Error(t, f.Append("", "x"))
}

func TestFileLogRejectsPathsOutsideDir(t *testing.T) {
	root := t.TempDir()
	f := NewFileLog(filepath.Join(root, "Logs"))
	outside := filepath.Join(root, "outside.log")

	for _, name := range []string{outside, "../outside.log", "nested/../../outside.log"} {
		err := f.Append(name, "x")
		assert.ErrorIs(t, err, ErrLogPathOutsideDir, name)
	}
	_, err := os.Stat(outside)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.Append("nested/fail.log", "x"))
	assert.FileExists(t, filepath.Join(root, "Logs", "nested", "fail.log"))
}
