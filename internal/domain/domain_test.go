package domain

import (
	"reflect"
	"testing"
)

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "simple list", in: "rust, backend", want: []string{"rust", "backend"}},
		{name: "mixed case and spacing", in: "  Go ,KUBERNETES,  cloud  ", want: []string{"go", "kubernetes", "cloud"}},
		{name: "empty entries dropped", in: "ai,, ,data,", want: []string{"ai", "data"}},
		{name: "repeats kept", in: "ai, AI", want: []string{"ai", "ai"}},
		{name: "blank input", in: "   ", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKeywords(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseKeywords(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDerivePostID(t *testing.T) {
	got := DerivePostID("https://x.com/p/1", "hello")
	if len(got) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%q)", len(got), got)
	}
	if got != DerivePostID("https://x.com/p/1", "hello") {
		t.Error("DerivePostID should be deterministic")
	}
	if got == DerivePostID("https://x.com/p/1", "hello!") {
		t.Error("different text should produce a different id")
	}
	if DerivePostID("", "") != "853ae90f0351324bd73ea615e6487517" {
		t.Errorf("md5(\":\") mismatch: %s", DerivePostID("", ""))
	}
}

func TestPostWithID(t *testing.T) {
	p := Post{Text: "t", Link: "l"}.WithID()
	if p.ID != DerivePostID("l", "t") {
		t.Errorf("expected derived id, got %q", p.ID)
	}

	explicit := Post{ID: "tweet-1", Text: "t", Link: "l"}.WithID()
	if explicit.ID != "tweet-1" {
		t.Errorf("explicit id should be kept, got %q", explicit.ID)
	}
}

func TestGroupIsComplete(t *testing.T) {
	tests := []struct {
		group Group
		want  bool
	}{
		{Group{GroupID: "g"}, false},
		{Group{GroupID: "g", Name: "n"}, false},
		{Group{GroupID: "g", InviteLink: "l"}, false},
		{Group{GroupID: "g", Name: "n", InviteLink: "l"}, true},
	}
	for _, tt := range tests {
		if got := tt.group.IsComplete(); got != tt.want {
			t.Errorf("IsComplete(%+v) = %v, want %v", tt.group, got, tt.want)
		}
	}
}
