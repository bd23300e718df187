package pubsub

import (
	"testing"

	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		channel string
		pattern string
		mode    ChannelMode
		wantErr bool
	}{
		{"exact", "hello", "news", "", ModeExact, false},
		{"sharded", "hello", "orders{1}", "", ModeSharded, false},
		{"pattern", "hello", "news.sport", "news.*", ModePattern, false},
		{"empty content", "", "news", "", ModeExact, true},
		{"empty channel", "hello", "", "", ModeExact, true},
		{"pattern missing", "hello", "news.sport", "", ModePattern, true},
		{"pattern on exact", "hello", "news", "news.*", ModeExact, true},
		{"pattern on sharded", "hello", "news", "news.*", ModeSharded, true},
		{"unknown mode", "hello", "news", "", ChannelMode(9), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.content, tt.channel, tt.pattern, tt.mode)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got message %v", msg)
				}
				if !errors.IsValidation(err) {
					t.Errorf("expected validation error, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Content() != tt.content || msg.Channel() != tt.channel || msg.Mode() != tt.mode {
				t.Errorf("fields mismatch: %v", msg)
			}
			pattern, ok := msg.Pattern()
			if ok != (tt.mode == ModePattern) || pattern != tt.pattern {
				t.Errorf("Pattern() = %q, %v", pattern, ok)
			}
		})
	}
}

func TestMessageEqual(t *testing.T) {
	a := mustMessage(t, "x", "ch")
	b := mustMessage(t, "x", "ch")
	c := mustMessage(t, "y", "ch")

	if !a.Equal(b) {
		t.Error("expected equal messages")
	}
	if a.Equal(c) {
		t.Error("expected different messages")
	}
	if a.Equal(nil) {
		t.Error("message should not equal nil")
	}
	var n *Message
	if !n.Equal(nil) {
		t.Error("nil should equal nil")
	}
}

func TestChannelModeString(t *testing.T) {
	cases := map[ChannelMode]string{
		ModeExact:      "exact",
		ModePattern:    "pattern",
		ModeSharded:    "sharded",
		ChannelMode(7): "unknown",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(mode), got, want)
		}
	}
}

func mustMessage(t *testing.T, content, channel string) *Message {
	t.Helper()
	msg, err := NewMessage(content, channel, "", ModeExact)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return msg
}
