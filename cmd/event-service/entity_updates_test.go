package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	printSummary(&out, map[string][]string{
		"event": {"The Description field needs to be installed.", "The location field needs to be uninstalled."},
	})

	assert.Equal(t, "Event entity type:\n"+
		"  - The Description field needs to be installed.\n"+
		"  - The location field needs to be uninstalled.\n", out.String())
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(&out, strings.NewReader("y\n"), "Apply?"))
	assert.True(t, confirm(&out, strings.NewReader("YES\n"), "Apply?"))
	assert.False(t, confirm(&out, strings.NewReader("\n"), "Apply?"))
	assert.False(t, confirm(&out, strings.NewReader(""), "Apply?"))
	assert.Contains(t, out.String(), "Apply? [y/N] ")
}
