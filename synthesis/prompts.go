// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package synthesis

import (
	"fmt"
	"strings"

	"github.com/poiesic/marginalia/core"
)

const promptHeader = `Answer the question below using only the context documents provided.
Cite your sources with [Document N] notation.`

const promptInstructions = `Instructions:
- Answer in the same language as the question
- Be concise but complete
- Cite every claim with its [Document N] source
- If the context does not contain enough information to answer fully, say so explicitly
- Combine information from several documents when they are relevant`

// BuildContext renders documents as numbered blocks, in the given order.
// Numbering starts at 1 and matches the [Document N] citations in answers.
func BuildContext(docs []core.RetrievedDocument) string {
	blocks := make([]string, len(docs))
	for i, doc := range docs {
		source := "Source: " + doc.Source
		if doc.Page != nil {
			source += fmt.Sprintf(", Page: %d", *doc.Page)
		}
		blocks[i] = fmt.Sprintf("[Document %d] %s\n%s\n", i+1, source, doc.Text)
	}
	return strings.Join(blocks, "\n")
}

// BuildUserPrompt wraps the rendered context and the question in the
// answering instructions sent as the final user turn.
func BuildUserPrompt(query string, docs []core.RetrievedDocument) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n<context>\n")
	b.WriteString(BuildContext(docs))
	b.WriteString("</context>\n\n<question>\n")
	b.WriteString(query)
	b.WriteString("\n</question>\n\n")
	b.WriteString(promptInstructions)
	return b.String()
}
