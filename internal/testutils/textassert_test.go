package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	messages []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func TestTextAsserter_MasksEventTimestamps(t *testing.T) {
	rt := &recordingT{}
	ta := NewTextAsserter(rt)

	ok := ta.Assert(
		"[10:11:12.345] Read 00020004 started\n[10:11:12.400] Read 00020004 succeeded: 02\n",
		"[00:00:00.000] Read 00020004 started\n[23:59:59.999] Read 00020004 succeeded: 02",
	)
	assert.True(t, ok)
	assert.Empty(t, rt.messages)
}

func TestTextAsserter_ReportsUnifiedDiff(t *testing.T) {
	rt := &recordingT{}
	ta := NewTextAsserter(rt)

	ok := ta.Assert("line one\nline two", "line one\nline 2")
	assert.False(t, ok)
	if assert.Len(t, rt.messages, 1) {
		assert.Contains(t, rt.messages[0], "-line 2")
		assert.Contains(t, rt.messages[0], "+line two")
	}
}

func TestTextAsserter_Options(t *testing.T) {
	t.Run("trailing whitespace ignored by default", func(t *testing.T) {
		assert.Empty(t, NewTextAsserter(t).Diff("a  \nb\t", "a\nb"))
	})

	t.Run("empty lines", func(t *testing.T) {
		assert.NotEmpty(t, NewTextAsserter(t).Diff("a\n\nb", "a\nb"))
		assert.Empty(t, NewTextAsserter(t, WithIgnoreEmptyLines(true)).Diff("a\n\nb", "a\nb"))
	})

	t.Run("timestamp masking disabled", func(t *testing.T) {
		ta := NewTextAsserter(t, WithMaskTimestamps(false))
		assert.NotEmpty(t, ta.Diff("[10:11:12.345] x", "[00:00:00.000] x"))
	})

	t.Run("colored diff", func(t *testing.T) {
		ta := NewTextAsserter(t, WithEnableColors(true))
		assert.Contains(t, ta.Diff("x", "y"), "\x1b[")
	})
}
