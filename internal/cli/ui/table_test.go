package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_RendersHeadersAndRows(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "NAME", "LOCATION").DisableColor()
	table.AddRow("Berlin", "DE")
	table.AddRow("Graz", "AT")
	table.Render()

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[0], "LOCATION")
	assert.Contains(t, lines[2], "Berlin")
	assert.Contains(t, lines[3], "Graz")
}

func TestTable_ColumnsWidenToLongestCell(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "ID").DisableColor()
	table.AddRow("a-much-longer-value")
	table.Render()

	lines := strings.Split(buf.String(), "\n")
	// The separator stretches to the widest cell.
	assert.Equal(t, len([]rune(lines[1])), len("a-much-longer-value"))
}

func TestTable_NoHeadersRendersNothing(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf).Render()
	assert.Empty(t, buf.String())
}
