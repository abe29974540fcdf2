package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CellTokenPrefix precedes the 1-based cell number in edit commands and broadcasts.
const CellTokenPrefix = "p"

// maxTokenLength bounds color and identity fields.
const maxTokenLength = 128

// EditCommand is a decoded client edit command "<prefix><n> <color> <identity>".
type EditCommand struct {
	Index    int // 0-based
	Color    Color
	Identity string
}

// ParseEditCommand decodes a client edit command. It does not check the index
// against the canvas bounds; that is the canvas' job.
func ParseEditCommand(raw string) (EditCommand, error) {
	fields := strings.Fields(raw)
	if len(fields) != 3 {
		return EditCommand{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedCommand, len(fields))
	}

	index, err := ParseCellToken(fields[0])
	if err != nil {
		return EditCommand{}, err
	}

	color, identity := fields[1], fields[2]
	if len(color) > maxTokenLength {
		return EditCommand{}, fmt.Errorf("%w: color exceeds %d bytes", ErrMalformedCommand, maxTokenLength)
	}
	if len(identity) > maxTokenLength {
		return EditCommand{}, fmt.Errorf("%w: identity exceeds %d bytes", ErrMalformedCommand, maxTokenLength)
	}

	return EditCommand{Index: index, Color: Color(color), Identity: identity}, nil
}

// ParseCellToken converts "p5" into the 0-based index 4. A token whose number is
// below 1 yields a negative index, which the canvas rejects as out of range.
func ParseCellToken(token string) (int, error) {
	digits, ok := strings.CutPrefix(token, CellTokenPrefix)
	if !ok || digits == "" {
		return 0, fmt.Errorf("%w: cell token %q", ErrMalformedCommand, token)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: cell token %q", ErrMalformedCommand, token)
	}
	return n - 1, nil
}

// CellToken is the inverse of ParseCellToken.
func CellToken(index int) string {
	return CellTokenPrefix + strconv.Itoa(index+1)
}

// FormatEdit renders the accepted-edit broadcast.
func FormatEdit(index int, color Color) string {
	return CellToken(index) + " " + string(color)
}

// FormatCooldown renders the cooldown notice sent to the originator only.
func FormatCooldown(remaining time.Duration) string {
	return "cooldown " + strconv.FormatFloat(remaining.Seconds(), 'f', 3, 64)
}

// FormatOnline renders the online-count broadcast.
func FormatOnline(count int) string {
	return "online " + strconv.Itoa(count)
}
