package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello World", []string{"hello", "world"}},
		{"comma,separated;and:punctuated!", []string{"comma", "separated", "and", "punctuated"}},
		{"  leading and trailing  ", []string{"leading", "and", "trailing"}},
		{"mixed3digits and 42", []string{"mixed3digits", "and", "42"}},
		{"", nil},
		{"!!!", nil},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("the quick brown fox jumps over the lazy dog")
	if len(set) != 8 {
		t.Errorf("set size = %d, want 8 (duplicate collapsed)", len(set))
	}
	if _, ok := set["quick"]; !ok {
		t.Error("quick should be in the set")
	}
	if _, ok := set["Quick"]; ok {
		t.Error("set members are lowercased")
	}
}
