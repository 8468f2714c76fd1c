// Package chunk groups formatted content into bounded-size blocks for a
// downstream consumer with a limited input budget.
package chunk

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

const itemSeparator = "\n\n"

// Item is one attributable piece of content headed for a context block.
type Item struct {
	Source models.SourceRef
	Title  string
	Page   int
	Text   string
}

// Format renders the item with its citation header.
func (it Item) Format() string {
	return fmt.Sprintf("%s - %s (page %d)\n%s", it.Source.Ref, it.Title, it.Page, it.Text)
}

// Citation returns the item's citation metadata.
func (it Item) Citation() models.Citation {
	return models.Citation{Source: it.Source, Title: it.Title, Page: it.Page}
}

// Block is one emitted context block. Oversize marks a block holding a single
// item whose formatted text alone exceeds the requested bound; such blocks
// are emitted verbatim rather than truncated mid-sentence.
type Block struct {
	Text     string
	Items    int
	Oversize bool
}

// Blocks returns a lazy, restartable sequence of blocks, each at most
// maxChars characters unless flagged Oversize. Characters are runes, the
// same unit SnippetPages counts in. Items are accumulated greedily; a
// boundary never falls inside an item, input order is preserved, and no
// item is dropped or duplicated.
func Blocks(items []Item, maxChars int) iter.Seq[Block] {
	sepLen := utf8.RuneCountInString(itemSeparator)
	return func(yield func(Block) bool) {
		var buf strings.Builder
		count := 0
		size := 0
		for _, it := range items {
			formatted := it.Format()
			itemLen := utf8.RuneCountInString(formatted)
			if count > 0 && size+sepLen+itemLen > maxChars {
				if !yield(Block{Text: buf.String(), Items: count}) {
					return
				}
				buf.Reset()
				count = 0
				size = 0
			}
			if count == 0 && itemLen > maxChars {
				if !yield(Block{Text: formatted, Items: 1, Oversize: true}) {
					return
				}
				continue
			}
			if count > 0 {
				buf.WriteString(itemSeparator)
				size += sepLen
			}
			buf.WriteString(formatted)
			size += itemLen
			count++
		}
		if count > 0 {
			yield(Block{Text: buf.String(), Items: count})
		}
	}
}

// Collect materializes the block sequence.
func Collect(items []Item, maxChars int) []Block {
	var blocks []Block
	for b := range Blocks(items, maxChars) {
		blocks = append(blocks, b)
	}
	return blocks
}

// SnippetPages splits a web snippet into fixed-size pages. Character offset i
// maps to page i/pageSize + 1; the same rule is applied at indexing time so
// citations stay consistent.
func SnippetPages(snippet string, pageSize int) []models.PageText {
	if pageSize <= 0 {
		pageSize = 500
	}
	runes := []rune(snippet)
	var pages []models.PageText
	for i := 0; i < len(runes); i += pageSize {
		end := i + pageSize
		if end > len(runes) {
			end = len(runes)
		}
		pages = append(pages, models.PageText{
			Page: i/pageSize + 1,
			Text: string(runes[i:end]),
		})
	}
	return pages
}

// SortByScore orders web results by descending relevance score, stable for
// equal scores. Score only affects pre-chunk ordering, never search ranking.
func SortByScore(results []models.WebResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// ItemsFromResults converts search hits into chunkable items.
func ItemsFromResults(results []models.SearchResult) []Item {
	items := make([]Item, 0, len(results))
	for _, r := range results {
		items = append(items, Item{Source: r.Source, Title: r.Title, Page: r.Page, Text: r.Text})
	}
	return items
}

// ItemsFromWebResults expands web results into per-page items, highest
// score first.
func ItemsFromWebResults(results []models.WebResult, pageSize int) []Item {
	sorted := make([]models.WebResult, len(results))
	copy(sorted, results)
	SortByScore(sorted)
	var items []Item
	for _, w := range sorted {
		for _, p := range SnippetPages(w.Snippet, pageSize) {
			items = append(items, Item{
				Source: models.WebRef(w.URL),
				Title:  w.Title,
				Page:   p.Page,
				Text:   p.Text,
			})
		}
	}
	return items
}
