package util

import "testing"

func TestTextKeyIgnoresWhitespace(t *testing.T) {
	a := TextKey("床前明月光，疑是地上霜。")
	b := TextKey("床前明月光，\n疑是地上霜。  ")
	if a != b {
		t.Errorf("keys should match regardless of whitespace: %s != %s", a, b)
	}
}

func TestTextKeyDistinguishesContent(t *testing.T) {
	a := TextKey("床前明月光")
	b := TextKey("举头望明月")
	if a == b {
		t.Error("different texts produced the same key")
	}
}

func TestTextKeyNormalizesUnicode(t *testing.T) {
	// e + combining acute vs precomposed é
	a := TextKey("café")
	b := TextKey("café")
	if a != b {
		t.Errorf("NFC forms should produce the same key: %s != %s", a, b)
	}
}

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("  静夜思\n")
	if got != "静夜思" {
		t.Errorf("NormalizeText = %q", got)
	}
}
