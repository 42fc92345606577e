package parser

import (
	"strings"
	"testing"
)

// firstError returns the message of the first diagnostic.
func firstError(t *testing.T, input string) string {
	t.Helper()
	res := ParseString(input)
	if len(res.Errors) == 0 {
		t.Fatalf("expected diagnostics for %q", input)
	}
	return res.Errors[0].Message
}

func TestParserErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantSub string
	}{
		{
			name:    "import without from",
			input:   `import "skill"`,
			wantSub: "'from'",
		},
		{
			name:    "import without source",
			input:   `import "skill" from`,
			wantSub: "a quoted source",
		},
		{
			name:    "agent without name",
			input:   "agent:\n  model: sonnet\n",
			wantSub: "an agent name",
		},
		{
			name:    "session without prompt or reference",
			input:   "session\n",
			wantSub: "a prompt string or agent reference",
		},
		{
			name:    "arrow without operand",
			input:   `session "A" ->`,
			wantSub: "missing its right-hand operand",
		},
		{
			name:    "arrow with bad operand",
			input:   `session "A" -> throw "x"`,
			wantSub: "must be a session or a do invocation",
		},
		{
			name:    "choice without discretion",
			input:   "choice:\n  option \"a\":\n    session \"x\"\n",
			wantSub: "a **condition** after 'choice'",
		},
		{
			name:    "let without value",
			input:   "let x =\n",
			wantSub: "an expression",
		},
		{
			name:    "bare identifier",
			input:   "let x = session \"a\"\nx\n",
			wantSub: "not a statement",
		},
		{
			name:    "loop modifier must be max",
			input:   "loop (count: 3):\n  session \"x\"\n",
			wantSub: "'max'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := firstError(t, tt.input)
			if !strings.Contains(msg, tt.wantSub) {
				t.Errorf("message %q does not contain %q", msg, tt.wantSub)
			}
		})
	}
}

// One mistake should produce one diagnostic, then the parser recovers at
// the next statement.
func TestParserRecoversAtNextStatement(t *testing.T) {
	input := "import \"skill\"\nsession \"still parsed\"\n"
	res := ParseString(input)
	if len(res.Errors) != 1 {
		t.Fatalf("want one error, got %v", res.Errors)
	}
	if len(res.Program.Statements) != 1 {
		t.Fatalf("want the following statement parsed, got %d", len(res.Program.Statements))
	}
}

func TestParserSkipsOrphanedBody(t *testing.T) {
	input := "agent:\n  model: sonnet\nsession \"after\"\n"
	res := ParseString(input)
	if len(res.Errors) == 0 {
		t.Fatal("want diagnostics")
	}
	if len(res.Program.Statements) != 1 {
		t.Fatalf("want recovery to the next statement, got %d statements", len(res.Program.Statements))
	}
}

func TestParserNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		":",
		"->",
		"| map:",
		"do\n",
		"(((((",
		"]]]]",
		"parallel (:\n",
		"let = 3\n",
		"session \"unterminated\ntry:\ncatch\n",
		"block b(:\n",
		"repeat:\n",
		"loop until:\n",
		"\t\t\tdo:\n",
	}
	for _, input := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("panic on %q: %v", input, r)
				}
			}()
			ParseString(input)
		}()
	}
}
