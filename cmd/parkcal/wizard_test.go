package main

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalOperator(t *testing.T) {
	var out bytes.Buffer
	op := &terminalOperator{
		in:  bufio.NewReader(strings.NewReader("x+1\n\nlast")),
		out: &out,
	}

	ans, err := op.Prompt("jog>")
	require.NoError(t, err)
	assert.Equal(t, "x+1", ans)

	ans, err = op.Prompt("jog>")
	require.NoError(t, err)
	assert.Equal(t, "", ans)

	ans, err = op.Prompt("jog>")
	require.NoError(t, err)
	assert.Equal(t, "last", ans)

	_, err = op.Prompt("jog>")
	assert.ErrorIs(t, err, io.EOF)

	op.Info("hello")
	assert.Contains(t, out.String(), "jog>")
	assert.Contains(t, out.String(), "hello")
}
