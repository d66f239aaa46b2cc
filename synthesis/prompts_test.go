package synthesis

import (
	"strings"
	"testing"

	"github.com/poiesic/marginalia/core"
	"github.com/stretchr/testify/assert"
)

func TestBuildContext(t *testing.T) {
	docs := []core.RetrievedDocument{
		{Source: "handbook.pdf", Page: core.IntPtr(3), Text: "Vacation accrues monthly."},
		{Source: "faq.md", Text: "Ask HR for details."},
	}

	got := BuildContext(docs)
	want := "[Document 1] Source: handbook.pdf, Page: 3\nVacation accrues monthly.\n" +
		"\n" +
		"[Document 2] Source: faq.md\nAsk HR for details.\n"
	assert.Equal(t, want, got)

	assert.Equal(t, "", BuildContext(nil))
}

func TestBuildUserPrompt(t *testing.T) {
	docs := []core.RetrievedDocument{{Source: "a.txt", Text: "alpha"}}
	prompt := BuildUserPrompt("What is alpha?", docs)

	assert.Contains(t, prompt, "<context>\n[Document 1] Source: a.txt\nalpha\n</context>")
	assert.Contains(t, prompt, "<question>\nWhat is alpha?\n</question>")
	assert.Contains(t, prompt, "same language as the question")
	assert.Contains(t, prompt, "[Document N]")
	assert.Contains(t, prompt, "not contain enough information")
	assert.True(t, strings.Index(prompt, "<context>") < strings.Index(prompt, "<question>"))
}
