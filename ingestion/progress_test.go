package ingestion

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	t.Run("counts and reports", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProgressTracker(&buf, 3)
		p.Start()

		p.Done(nil)
		p.Done(errors.New("boom"))
		p.Done(nil)
		p.Finish()

		done, failed := p.Counts()
		assert.Equal(t, 3, done)
		assert.Equal(t, 1, failed)

		out := buf.String()
		assert.Contains(t, out, "Ingested: 1/3 (33.3%), 0 failed")
		assert.Contains(t, out, "Ingested: 3/3 (100.0%), 1 failed")
		assert.True(t, strings.HasSuffix(out, "\n"))
	})

	t.Run("ignores updates before start", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProgressTracker(&buf, 2)

		p.Done(nil)
		p.Finish()

		done, _ := p.Counts()
		assert.Equal(t, 0, done)
		assert.Empty(t, buf.String())
		assert.Zero(t, p.Elapsed())
	})

	t.Run("caps at total", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProgressTracker(&buf, 1)
		p.Start()

		p.Done(nil)
		p.Done(nil)

		done, _ := p.Counts()
		assert.Equal(t, 1, done)
	})
}
