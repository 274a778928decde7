package session

import (
	"strings"
	"testing"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	got, err := sanitizeText("text", "plain\ttext\r\nnext line", 100)
	require.NoError(t, err)
	assert.Equal(t, "plain\ttext\r\nnext line", got)

	got, err = sanitizeText("text", "\x1b[31mred\x1b[0m\x00\a", 100)
	require.NoError(t, err)
	assert.Equal(t, "[31mred[0m", got)

	_, err = sanitizeText("text", strings.Repeat("a", 101), 100)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = sanitizeText("text", strings.Repeat("a", 101), 0)
	assert.NoError(t, err, "zero disables the bound")

	_, err = sanitizeText("text", "bad \xff byte", 100)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSanitizePoll_CopiesOptions(t *testing.T) {
	in := domain.Poll{Question: "Pick\x07", Options: []string{"a\x00", "b"}, AllowMultiple: true}
	out, err := sanitizePoll(in, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Poll{Question: "Pick", Options: []string{"a", "b"}, AllowMultiple: true}, out)
	assert.Equal(t, "a\x00", in.Options[0], "input is untouched")
}
