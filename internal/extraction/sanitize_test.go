package extraction

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		"  {\"a\":1}  ":                `{"a":1}`,
		"```json\n{\"a\":1}":           `{"a":1}`,
		"Sure! {\"a\":1} Hope it helps": "Sure! {\"a\":1} Hope it helps",
		"":                             "",
		"```":                          "",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q): got %q want %q", in, got, want)
		}
	}
}

func TestSanitizeKeepsInnerTextByteForByte(t *testing.T) {
	inner := "{\n  \"title\": \"Dal\",\n  \"note\": \"use ``` sparingly\"\n}"
	if got := Sanitize("```json\n" + inner + "\n```"); got != inner {
		t.Fatalf("got %q want %q", got, inner)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"```json\n{\"a\":1}\n```",
		"```json\n```json\n{}\n```\n```",
		"plain text answer",
		"  \n```\nx\n```\n ",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
