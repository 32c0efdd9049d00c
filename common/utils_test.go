package common

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestShortHash(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"hash", "abcdef1234567890abcdef1234567890abcdef12", "[abcdef..]"},
		{"upper", "ABCDEF1234567890ABCDEF1234567890ABCDEF12", "[abcdef..]"},
		{"short", "123", "123"},
		{"long", "1abcdef1234567890abcdef1234567890abcdef12", "1abcdef1234567890abcdef1234567890abcdef12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShortHash(tt.in); got != tt.want {
				t.Errorf("ShortHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	if HandleError(nil) {
		t.Error("nil error reported")
	}
	if !HandleError(errors.New("boom")) {
		t.Error("error not reported")
	}
}

func TestSetupLogging(t *testing.T) {
	if err := SetupLogging(LogConfig{Level: "nope"}); err == nil {
		t.Error("expected invalid level error")
	}
	f := filepath.Join(t.TempDir(), "logs", "app.log")
	if err := SetupLogging(LogConfig{Level: "debug", File: f, NoTime: true}); err != nil {
		t.Fatal(err)
	}
	Logger("test").Info("hello")
	StdLogger("http").Print("from the std logger")
	b, err := os.ReadFile(f)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	for _, want := range []string{"hello", "from the std logger", "component=http"} {
		if !strings.Contains(string(b), want) {
			t.Errorf("log file missing %q:\n%s", want, b)
		}
	}
	if err := SetupLogging(LogConfig{}); err != nil {
		t.Fatal(err)
	}
}
