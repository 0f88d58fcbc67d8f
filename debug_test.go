//nolint:paralleltest // Tests modify package-level debug state, cannot run in parallel
package pn533

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	testutil "github.com/ZaparooProject/go-pn533/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// captureSessionLog routes the session logger into a buffer for one test.
func captureSessionLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	origEnabled := debugEnabled.Load()
	origLogger := sessionLogger.Load()
	t.Cleanup(func() {
		debugEnabled.Store(origEnabled)
		sessionLogger.Store(origLogger)
	})

	var buf bytes.Buffer
	setSessionWriter(&buf)
	debugEnabled.Store(false)
	return &buf
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	buf := captureSessionLog(t)

	Debugf("test message %d", 42)

	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "test message 42")
}

func TestDebugf_IncludesTimestamp(t *testing.T) {
	buf := captureSessionLog(t)

	Debugf("test message")

	matched, err := regexp.MatchString(`^\d{2}:\d{2}:\d{2}\.\d{3}\s+DEBUG`, buf.String())
	require.NoError(t, err)
	assert.True(t, matched, "Should start with HH:MM:SS.mmm DEBUG, got: %s", buf.String())
}

func TestDebugf_NilSessionLogger(t *testing.T) {
	captureSessionLog(t)
	setSessionWriter(nil)

	assert.NotPanics(t, func() { Debugf("test message %d", 42) })
}

func TestDebugln_JoinsOperands(t *testing.T) {
	buf := captureSessionLog(t)

	Debugln("value1", 42, "value2", true)

	assert.Contains(t, buf.String(), "value1 42 value2 true")
}

func TestDebugf_MultipleMessages(t *testing.T) {
	buf := captureSessionLog(t)

	Debugf("message 1")
	Debugf("message 2")
	Debugf("message 3")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "message 1")
	assert.Contains(t, lines[2], "message 3")
}

func TestSetDebugEnabled(t *testing.T) {
	captureSessionLog(t)

	SetDebugEnabled(true)
	assert.True(t, debugEnabled.Load())

	SetDebugEnabled(false)
	assert.False(t, debugEnabled.Load())
}

func TestSetLogger_NilRestoresDefault(t *testing.T) {
	orig := consoleLogger.Load()
	t.Cleanup(func() { consoleLogger.Store(orig) })

	SetLogger(nil)
	assert.NotNil(t, consoleLogger.Load())
}

func TestWithLogger_IsPackageWide(t *testing.T) {
	captureSessionLog(t)
	t.Cleanup(func() { SetLogger(nil) })

	firstCore, first := observer.New(zapcore.DebugLevel)
	secondCore, second := observer.New(zapcore.DebugLevel)

	_, err := New(testutil.NewVirtualPN533(), WithLogger(zap.New(firstCore)))
	require.NoError(t, err)
	_, err = New(testutil.NewVirtualPN533(), WithLogger(zap.New(secondCore)))
	require.NoError(t, err)

	Debugf("after second device")
	assert.Zero(t, first.FilterMessage("after second device").Len())
	assert.Equal(t, 1, second.FilterMessage("after second device").Len())
}
