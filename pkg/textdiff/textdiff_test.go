package textdiff

import (
	"testing"

	"collabgate/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name    string
		oldText string
		newText string
		wantOp  bool
		kind    domain.OperationKind
		pos     int
		content string
		length  int
	}{
		{
			name:    "insert at start",
			oldText: "world",
			newText: "Hello world",
			wantOp:  true,
			kind:    domain.OperationInsert,
			pos:     0,
			content: "Hello ",
		},
		{
			name:    "insert in middle",
			oldText: "abcd",
			newText: "abXYcd",
			wantOp:  true,
			kind:    domain.OperationInsert,
			pos:     2,
			content: "XY",
		},
		{
			name:    "insert at end",
			oldText: "abc",
			newText: "abcdef",
			wantOp:  true,
			kind:    domain.OperationInsert,
			pos:     3,
			content: "def",
		},
		{
			name:    "delete at start",
			oldText: "Hello world",
			newText: "world",
			wantOp:  true,
			kind:    domain.OperationDelete,
			pos:     0,
			length:  6,
		},
		{
			name:    "delete in middle",
			oldText: "abXYcd",
			newText: "abcd",
			wantOp:  true,
			kind:    domain.OperationDelete,
			pos:     2,
			length:  2,
		},
		{
			name:    "delete everything",
			oldText: "abc",
			newText: "",
			wantOp:  true,
			kind:    domain.OperationDelete,
			pos:     0,
			length:  3,
		},
		{
			name:    "no change",
			oldText: "same",
			newText: "same",
			wantOp:  false,
		},
		{
			name:    "same length replacement emits nothing",
			oldText: "abcd",
			newText: "abXd",
			wantOp:  false,
		},
		{
			name:    "multibyte insert counts runes",
			oldText: "héllo",
			newText: "héééllo",
			wantOp:  true,
			kind:    domain.OperationInsert,
			pos:     2,
			content: "éé",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := Diff(tt.oldText, tt.newText)
			require.Equal(t, tt.wantOp, ok)
			if !tt.wantOp {
				return
			}
			assert.Equal(t, tt.kind, op.Kind)
			assert.Equal(t, tt.pos, op.Position)
			if tt.kind == domain.OperationInsert {
				assert.Equal(t, tt.content, op.Content)
			} else {
				assert.Equal(t, tt.length, op.Length)
			}
		})
	}
}

func TestDiffApplyRoundTrip(t *testing.T) {
	cases := [][2]string{
		{"world", "Hello world"},
		{"Hello world", "world"},
		{"", "fresh"},
		{"stale", ""},
		{"abc", "abXc"},
		{"résumé", "résumés"},
	}

	for _, c := range cases {
		op, ok := Diff(c[0], c[1])
		require.True(t, ok, "diff %q -> %q", c[0], c[1])
		assert.Equal(t, c[1], Apply(c[0], op))
	}
}

func TestApplyClampsOutOfRange(t *testing.T) {
	// The server forwards operations without validating them, so the
	// apply side must tolerate positions past the end of the buffer.
	got := Apply("abc", domain.Operation{Kind: domain.OperationInsert, Position: 99, Content: "X"})
	assert.Equal(t, "abcX", got)

	got = Apply("abc", domain.Operation{Kind: domain.OperationDelete, Position: 1, Length: 99})
	assert.Equal(t, "a", got)

	got = Apply("abc", domain.Operation{Kind: domain.OperationDelete, Position: -1, Length: 1})
	assert.Equal(t, "bc", got)
}

func TestAdjustCursor(t *testing.T) {
	tests := []struct {
		name   string
		cursor int
		op     domain.Operation
		want   int
	}{
		{
			name:   "insert before cursor shifts right",
			cursor: 5,
			op:     domain.Operation{Kind: domain.OperationInsert, Position: 0, Content: "Hello "},
			want:   11,
		},
		{
			name:   "insert at cursor shifts right",
			cursor: 3,
			op:     domain.Operation{Kind: domain.OperationInsert, Position: 3, Content: "ab"},
			want:   5,
		},
		{
			name:   "insert after cursor leaves it",
			cursor: 2,
			op:     domain.Operation{Kind: domain.OperationInsert, Position: 7, Content: "zz"},
			want:   2,
		},
		{
			name:   "delete before cursor shifts left",
			cursor: 10,
			op:     domain.Operation{Kind: domain.OperationDelete, Position: 2, Length: 3},
			want:   7,
		},
		{
			name:   "delete spanning cursor clamps to edit position",
			cursor: 5,
			op:     domain.Operation{Kind: domain.OperationDelete, Position: 2, Length: 10},
			want:   2,
		},
		{
			name:   "delete after cursor leaves it",
			cursor: 1,
			op:     domain.Operation{Kind: domain.OperationDelete, Position: 4, Length: 2},
			want:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AdjustCursor(tt.cursor, tt.op); got != tt.want {
				t.Errorf("AdjustCursor() = %d, want %d", got, tt.want)
			}
		})
	}
}
