package synthesis

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an assistant that summarizes documents and academic articles. " +
	"Answer in at most 4 paragraphs and cite your sources explicitly: " +
	"documents as 'filename - Title (pages)', web articles by URL and title, " +
	"with page numbers (every 500 characters of a snippet is one page)."

// buildPrompt renders one context block into a user prompt, mirroring the
// section layout the answer format was tuned on: prior exchanges, the
// question, source material, and the consulted-source list.
func buildPrompt(req Request, blockText string) string {
	var b strings.Builder

	if len(req.History) > 0 {
		b.WriteString("Previous context:\n")
		for _, e := range req.History {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", e.Question, e.Answer)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\n", req.Question)

	if blockText != "" {
		b.WriteString("Source material:\n")
		b.WriteString(blockText)
		b.WriteString("\n\n")
	}

	if len(req.Citations) > 0 {
		b.WriteString("Sources consulted:\n")
		for _, c := range req.Citations {
			if c.PageRange != "" {
				fmt.Fprintf(&b, "- %s - %s (pages: %s)\n", c.Source.Ref, c.Title, c.PageRange)
			} else {
				fmt.Fprintf(&b, "- %s - %s (page %d)\n", c.Source.Ref, c.Title, c.Page)
			}
		}
	}

	return b.String()
}

// combinePrompt merges per-block partial answers into one final answer.
func combinePrompt(question string, partials []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("The source material was processed in parts. Merge the partial " +
		"answers below into one coherent answer of at most 4 paragraphs, keeping " +
		"all citations:\n\n")
	for i, p := range partials {
		fmt.Fprintf(&b, "Partial answer %d:\n%s\n\n", i+1, p)
	}
	return b.String()
}
