package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerbosityFiltersMessages(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetVerbosity(int(Info))
		_ = SetFormat("text")
	})

	SetVerbosity(int(Info))
	Debugf("event=hidden")
	Infof("event=shown ticker=%s", "F")

	assert.NotContains(t, buf.String(), "event=hidden")
	assert.Contains(t, buf.String(), "event=shown ticker=F")

	buf.Reset()
	SetVerbosity(int(Trace))
	Tracef("event=trace_line")
	assert.Contains(t, buf.String(), "event=trace_line")
	assert.Equal(t, Trace, Verbosity())
}

func TestSetVerbosityClamps(t *testing.T) {
	t.Cleanup(func() { SetVerbosity(int(Info)) })

	SetVerbosity(-3)
	assert.Equal(t, Error, Verbosity())

	SetVerbosity(42)
	assert.Equal(t, Trace, Verbosity())
}

func TestParseVerbosity(t *testing.T) {
	for name, want := range map[string]Level{"error": Error, "": Info, "INFO": Info, "debug": Debug, "trace": Trace} {
		got, err := ParseVerbosity(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseVerbosity("loud")
	assert.Error(t, err)
}

func TestSetFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { _ = SetFormat("text") })

	require.NoError(t, SetFormat("json"))
	Infof("event=json_line")
	assert.Contains(t, buf.String(), `"msg":"event=json_line"`)

	assert.Error(t, SetFormat("xml"))
}
