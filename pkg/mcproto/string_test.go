package mcproto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReadStringMaxRoundTrip(t *testing.T) {
	cases := []string{"", "a", "play.example.com", strings.Repeat("x", 256)}
	for _, s := range cases {
		var buf bytes.Buffer
		if _, err := WriteString(&buf, s); err != nil {
			t.Fatalf("WriteString(%q): %v", s, err)
		}
		got, _, err := ReadStringMax(&buf, 256)
		if err != nil {
			t.Fatalf("ReadStringMax(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("roundtrip: want %q got %q", s, got)
		}
	}
}

func TestReadStringMaxRejectsOverLength(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteString(&buf, strings.Repeat("x", 257)); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if _, _, err := ReadStringMax(&buf, 256); !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("want ErrStringTooLong, got %v", err)
	}
}

func TestReadStringMaxRejectsInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteVarInt(&buf, 3); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
	buf.Write([]byte{0xff, 0xfe, 0xfd})
	if _, _, err := ReadStringMax(&buf, 256); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("want ErrInvalidUTF8, got %v", err)
	}
}
