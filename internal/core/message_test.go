package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParseMessageType(t *testing.T) {
	cases := map[string]MessageType{
		"":      MessageText,
		"TEXT":  MessageText,
		"image": MessageImage,
		"FILE":  MessageFile,
		"AUDIO": MessageAudio,
	}
	for in, want := range cases {
		got, err := ParseMessageType(in)
		if err != nil {
			t.Fatalf("ParseMessageType(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMessageType(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseMessageType("VIDEO"); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for VIDEO, got %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	m, err := Message{Type: MessageText, Content: "  hello  ", FileURL: "http://x"}.Normalize(0)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if m.Content != "hello" || m.FileURL != "" {
		t.Fatalf("unexpected normalized message: %+v", m)
	}

	if _, err := (Message{Type: MessageText, Content: "   "}).Normalize(0); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected empty text rejection, got %v", err)
	}
	if _, err := (Message{Type: MessageText, Content: strings.Repeat("é", 11)}).Normalize(10); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected long text rejection, got %v", err)
	}
	if _, err := (Message{Type: MessageText, Content: strings.Repeat("é", 10)}).Normalize(10); err != nil {
		t.Fatalf("expected 10 runes to be accepted, got %v", err)
	}
}

func TestNormalizeMediaUsesPlaceholder(t *testing.T) {
	cases := []struct {
		typ  MessageType
		want string
	}{
		{MessageImage, "Sent an image"},
		{MessageFile, "Sent a file"},
		{MessageAudio, "Sent a voice message"},
	}
	for _, tc := range cases {
		m, err := Message{Type: tc.typ, Content: "user text", FileURL: "http://cdn/x"}.Normalize(0)
		if err != nil {
			t.Fatalf("%s: %v", tc.typ, err)
		}
		if m.Content != tc.want {
			t.Fatalf("%s: expected placeholder %q, got %q", tc.typ, tc.want, m.Content)
		}
		if m.FileURL == "" {
			t.Fatalf("%s: fileUrl must survive normalization", tc.typ)
		}

		if _, err := (Message{Type: tc.typ}).Normalize(0); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("%s without url: expected ErrInvalidMessage, got %v", tc.typ, err)
		}
	}

	if _, err := (Message{Type: "VIDEO", FileURL: "http://x"}).Normalize(0); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected unknown type rejection, got %v", err)
	}
}
