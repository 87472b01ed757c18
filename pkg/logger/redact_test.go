package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "regular", in: "alice@example.com", want: "al****@example.com"},
		{name: "trims spaces", in: "  bob.smith@x.io ", want: "bo****@x.io"},
		{name: "short local part", in: "ab@example.com", want: "ab@example.com"},
		{name: "no at sign", in: "not-an-email", want: "not-an-email"},
		{name: "at at end", in: "alice@", want: "alice@"},
		{name: "empty", in: "", want: ""},
		{name: "multibyte", in: "ñandú@example.com", want: "ña****@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactEmail(tt.in))
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
