package contentgen

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRepair_FixesCommonMalformations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // canonical JSON of the expected value
	}{
		{
			name: "markdown fence",
			in:   "```json\n{\"answer\": \"lis\"}\n```",
			want: `{"answer":"lis"}`,
		},
		{
			name: "prose around value",
			in:   `Sure! Here is the exercise: {"answer": "lis"} Hope this helps.`,
			want: `{"answer":"lis"}`,
		},
		{
			name: "trailing commas",
			in:   `{"options": ["a", "b", "c",], "answer": "a",}`,
			want: `{"answer":"a","options":["a","b","c"]}`,
		},
		{
			name: "bare keys",
			in:   `{answer: "lis", correct_index: 2}`,
			want: `{"answer":"lis","correct_index":2}`,
		},
		{
			name: "single quoted strings",
			in:   `{'prompt': 'Il dit "bonjour"', 'answer': 'l\'homme'}`,
			want: `{"answer":"l'homme","prompt":"Il dit \"bonjour\""}`,
		},
		{
			name: "python literals",
			in:   `{"is_correct": True, "hint": None}`,
			want: `{"hint":null,"is_correct":true}`,
		},
		{
			name: "unclosed brackets",
			in:   `{"options": ["a", "b"`,
			want: `{"options":["a","b"]}`,
		},
		{
			name: "unterminated string",
			in:   `{"feedback": "Presque`,
			want: `{"feedback":"Presque"}`,
		},
		{
			name: "dangling key",
			in:   `{"score": 80, "feedback":`,
			want: `{"feedback":null,"score":80}`,
		},
		{
			name: "raw newline in string",
			in:   "{\"passage\": \"ligne un\nligne deux\"}",
			want: `{"passage":"ligne un\nligne deux"}`,
		},
		{
			name: "stray closer",
			in:   `{"a": 1}}`,
			want: `{"a":1}`,
		},
		{
			name: "fence without info string",
			in:   "```\n[1, 2,]\n```",
			want: `[1,2]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.in)
			assertSameJSON(t, got, tt.want)
		})
	}
}

func TestRepair_IdempotentOnWellFormedInput(t *testing.T) {
	inputs := []string{
		`{"prompt":"Je ___ un livre.","answer":"lis","options":["lis","lit","lisons"]}`,
		`{"text": "it's a \"quote\" with a } brace and ` + "```" + ` fence", "n": 1e3}`,
		`[{"a": true}, {"b": null}, 3.5, "x"]`,
		`"just a string {with braces}"`,
		`  {"padded": 1}  `,
	}

	for _, in := range inputs {
		once := Repair(in)
		assertSameJSON(t, once, in)

		twice := Repair(once)
		if twice != once {
			t.Errorf("Repair not idempotent:\n once:  %s\n twice: %s", once, twice)
		}
	}
}

func TestRepair_OutputOfRepairIsStable(t *testing.T) {
	in := "Here you go:\n```json\n{answer: 'lis', options: ['a', 'b',],\n```"
	once := Repair(in)
	if !json.Valid([]byte(once)) {
		t.Fatalf("expected valid JSON, got %s", once)
	}
	if twice := Repair(once); twice != once {
		t.Errorf("second repair changed output: %s -> %s", once, twice)
	}
}

func TestRepair_HopelessInputStaysInvalid(t *testing.T) {
	out := Repair("I cannot help with that.")
	if json.Valid([]byte(out)) {
		t.Fatalf("expected invalid JSON for prose, got %s", out)
	}
}

func assertSameJSON(t *testing.T, got, want string) {
	t.Helper()
	var g, w any
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("repaired output is not valid JSON: %v\n%s", err, got)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expectation %s: %v", want, err)
	}
	if !reflect.DeepEqual(g, w) {
		t.Fatalf("value mismatch:\n got:  %s\n want: %s", got, want)
	}
}
