// Package textdiff derives edit operations from local text changes
// and applies remote operations to a local buffer. It is the client
// half of the synchronization scheme: a single contiguous insert or
// delete per change, not a conflict-resolving operational transform.
package textdiff

import "collabgate/internal/core/domain"

// Diff compares old and new text and produces the single operation
// that turns old into new, assuming one contiguous edit region: the
// first differing index is found by a prefix scan and the remainder
// is classified by length as an insert (new longer) or delete (new
// shorter).
//
// A compound edit (for example a simultaneous paste and delete at
// different positions) is captured as one large span rather than a
// minimal diff; callers must not rely on minimality. Equal-length
// texts, including same-length replacements, yield no operation.
// Positions and lengths count runes, not bytes.
func Diff(oldText, newText string) (domain.Operation, bool) {
	if oldText == newText {
		return domain.Operation{}, false
	}

	oldRunes := []rune(oldText)
	newRunes := []rune(newText)

	pos := commonPrefix(oldRunes, newRunes)

	switch {
	case len(newRunes) > len(oldRunes):
		span := len(newRunes) - len(oldRunes)
		return domain.Operation{
			Kind:     domain.OperationInsert,
			Position: pos,
			Content:  string(newRunes[pos : pos+span]),
		}, true

	case len(newRunes) < len(oldRunes):
		return domain.Operation{
			Kind:     domain.OperationDelete,
			Position: pos,
			Length:   len(oldRunes) - len(newRunes),
		}, true

	default:
		// Same-length replacement: not expressible as one contiguous
		// insert or delete, so no operation is emitted.
		return domain.Operation{}, false
	}
}

// Apply splices a remote operation into the buffer: inserts Content
// at Position, or removes Length runes starting at Position. Out of
// range positions and lengths are clamped rather than rejected; the
// server forwards operations without validating them against the
// true buffer.
func Apply(buffer string, op domain.Operation) string {
	runes := []rune(buffer)

	pos := op.Position
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}

	switch op.Kind {
	case domain.OperationInsert:
		out := make([]rune, 0, len(runes)+len([]rune(op.Content)))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.Content)...)
		out = append(out, runes[pos:]...)
		return string(out)

	case domain.OperationDelete:
		end := pos + op.Length
		if end > len(runes) {
			end = len(runes)
		}
		out := make([]rune, 0, len(runes)-(end-pos))
		out = append(out, runes[:pos]...)
		out = append(out, runes[end:]...)
		return string(out)
	}

	return buffer
}

// AdjustCursor shifts a local cursor to account for a remote edit.
// An insert at or before the cursor shifts it right by the inserted
// length; a delete shifts it left by the overlapping amount, clamped
// so the cursor never precedes the edit position. Edits strictly
// after the cursor leave it unchanged.
func AdjustCursor(cursor int, op domain.Operation) int {
	if op.Position > cursor {
		return cursor
	}

	switch op.Kind {
	case domain.OperationInsert:
		return cursor + len([]rune(op.Content))

	case domain.OperationDelete:
		removed := cursor - op.Position
		if removed > op.Length {
			removed = op.Length
		}
		return cursor - removed
	}

	return cursor
}

func commonPrefix(a, b []rune) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
