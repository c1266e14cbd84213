package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerFormatsKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("Analyzer", &buf)

	l.Info("Replacing result", "result", "1234", "type", "time", "dangling")

	out := buf.String()
	if !strings.Contains(out, "[Analyzer] ") {
		t.Errorf("missing prefix: %q", out)
	}
	if !strings.Contains(out, "[INFO] Replacing result result=1234 type=time") {
		t.Errorf("unexpected line: %q", out)
	}
	if strings.Contains(out, "dangling") {
		t.Errorf("odd trailing key should be dropped: %q", out)
	}
}

func TestLoggerLevelThreshold(t *testing.T) {
	testCases := []struct {
		level Level
		want  []string
	}{
		{LevelDebug, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{LevelInfo, []string{"INFO", "WARN", "ERROR"}},
		{LevelWarn, []string{"WARN", "ERROR"}},
		{LevelError, []string{"ERROR"}},
		{LevelNone, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLoggerWithWriter("test", &buf)
			l.SetLevel(tc.level)

			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(tc.want) == 0 {
				if buf.Len() != 0 {
					t.Errorf("expected no output, got %q", buf.String())
				}
				return
			}
			if len(lines) != len(tc.want) {
				t.Fatalf("expected %d lines, got %d: %q", len(tc.want), len(lines), buf.String())
			}
			for i, name := range tc.want {
				if !strings.Contains(lines[i], "["+name+"]") {
					t.Errorf("line %d: expected level %s in %q", i, name, lines[i])
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "Warn", "error", "none"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", s, err)
		}
	}
	if level, _ := ParseLevel("warn"); level != LevelWarn {
		t.Errorf("ParseLevel(warn) = %v", level)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetDefaultLevel(t *testing.T) {
	SetDefaultLevel(LevelError)
	defer SetDefaultLevel(LevelInfo)

	var buf bytes.Buffer
	l := NewLoggerWithWriter("test", &buf)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be dropped, got %q", buf.String())
	}
}
