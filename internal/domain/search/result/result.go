package result

import "github.com/kailas-cloud/docdex/internal/domain/document"

// Page is one page of search results.
type Page struct {
	items   []*document.Document
	cursor  string
	hasMore bool
}

// NewPage creates a page. cursor is empty when there is no next page.
func NewPage(items []*document.Document, cursor string, hasMore bool) Page {
	if items == nil {
		items = []*document.Document{}
	}
	return Page{items: items, cursor: cursor, hasMore: hasMore}
}

// Items returns the grouped results in rank order.
func (p Page) Items() []*document.Document { return p.items }

// Cursor returns the token for the next page, empty on the last page.
func (p Page) Cursor() string { return p.cursor }

// HasMore reports whether another page exists.
func (p Page) HasMore() bool { return p.hasMore }
