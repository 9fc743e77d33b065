package daemon

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr error
	}{
		{"stop", `{"type":"stop"}`, Command{Kind: KindStop}, nil},
		{"pause", `{"type":"pause"}`, Command{Kind: KindPause}, nil},
		{"skip", `{"type":"skip"}`, Command{Kind: KindSkip}, nil},
		{"next", `{"type":"next"}`, Command{Kind: KindNext}, nil},
		{"play", `{"type":"play","path":"/music/a.mp3","now":true}`, Play("/music/a.mp3", true), nil},
		{"play queued", `{"type":"play","path":"/music/a.mp3"}`, Play("/music/a.mp3", false), nil},
		{"volume", `{"type":"volume","level":0.5}`, Volume(0.5), nil},
		{"unknown", `{"type":"rewind"}`, Command{}, ErrUnknownCommand},
		{"missing type", `{}`, Command{}, ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []string{
		``,
		`{"type":`,
		`not json`,
		`{"type":"play"}`,
		`{"type":"volume","level":-1}`,
	}
	for _, in := range inputs {
		if _, err := Decode(strings.NewReader(in)); err == nil {
			t.Errorf("Decode(%q) succeeded, want error", in)
		}
	}
}

func TestEncode_GenerationStaysLocal(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Command{Kind: KindNext, gen: 7}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(buf.String(), "7") {
		t.Errorf("generation leaked onto the wire: %s", buf.String())
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.gen != 0 {
		t.Errorf("decoded gen = %d, want 0", got.gen)
	}
}

func TestEncode_RejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Command{Kind: "bogus"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written for an invalid command")
	}
}
