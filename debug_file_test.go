//nolint:paralleltest // Tests modify package-level session log state, cannot run in parallel
package pn533

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanupSessionLog(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = CloseSessionLog()
	})
}

func TestInitSessionLog_CreatesFile(t *testing.T) {
	cleanupSessionLog(t)
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "Log file should exist")
	assert.Equal(t, path, GetSessionLogPath())

	matched, err := regexp.MatchString(`^pn533_\d{8}_\d{6}\.log$`, filepath.Base(path))
	require.NoError(t, err)
	assert.True(t, matched, "unexpected file name %s", path)
}

func TestInitSessionLog_WritesHeaderAndMessages(t *testing.T) {
	cleanupSessionLog(t)

	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)

	Debugf("polling %s", "FeliCa")
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // test reads its own temp file
	require.NoError(t, err)
	assert.Contains(t, string(content), "=== PN533 Debug Session Log ===")
	assert.Contains(t, string(content), "polling FeliCa")
	assert.Contains(t, string(content), "=== Session ended ===")
	assert.Empty(t, GetSessionLogPath())
}

func TestCloseSessionLog_NoSession(t *testing.T) {
	require.NoError(t, CloseSessionLog())
}

func TestSessionLog_ConcurrentUse(t *testing.T) {
	cleanupSessionLog(t)
	dir := t.TempDir()

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := InitSessionLog(dir)
			assert.NoError(t, err)
			paths[i] = path
			Debugf("worker %d", i)
			_ = GetSessionLogPath()
		}()
	}
	wg.Wait()

	// every caller shares the one session that won the race
	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
	assert.Equal(t, paths[0], GetSessionLogPath())
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
}
