package text

import "strings"

// DefaultRowsPerPage is the page size used by list commands.
const DefaultRowsPerPage = 15

// Message is a bot reply made of plain lines and optional paged lines.
type Message struct {
	Content     []string
	Paged       []string
	RowsPerPage int
}

// NewMessage returns a message with the default page size.
func NewMessage() *Message {
	return &Message{RowsPerPage: DefaultRowsPerPage}
}

// AddContent appends plain lines.
func (m *Message) AddContent(lines ...string) {
	m.Content = append(m.Content, lines...)
}

// AddPaged appends lines that are shown page by page.
func (m *Message) AddPaged(lines ...string) {
	m.Paged = append(m.Paged, lines...)
}

// IsPaged reports whether the message has paged lines.
func (m *Message) IsPaged() bool {
	return len(m.Paged) > 0
}

// PageCount returns the number of pages, at least 1.
func (m *Message) PageCount() int {
	if !m.IsPaged() {
		return 1
	}
	rows := m.rows()
	return (len(m.Paged) + rows - 1) / rows
}

// Text joins the plain lines.
func (m *Message) Text() string {
	return strings.Join(m.Content, "\n")
}

// Page returns the paged lines of the 1-based page, or the plain text when
// the message is not paged. Out-of-range pages yield "".
func (m *Message) Page(page int) string {
	if !m.IsPaged() {
		return m.Text()
	}
	lines, _ := Paginate(m.Paged, m.rows(), page)
	return strings.Join(lines, "\n")
}

func (m *Message) rows() int {
	if m.RowsPerPage <= 0 {
		return DefaultRowsPerPage
	}
	return m.RowsPerPage
}

// Paginate returns the lines of the 1-based page and the total number of
// pages. A page outside [1, total] yields no lines.
func Paginate(lines []string, rowsPerPage, page int) ([]string, int) {
	if rowsPerPage <= 0 {
		rowsPerPage = DefaultRowsPerPage
	}
	total := (len(lines) + rowsPerPage - 1) / rowsPerPage
	if total == 0 {
		total = 1
	}
	if page < 1 || page > total {
		return nil, total
	}
	start := (page - 1) * rowsPerPage
	end := min(start+rowsPerPage, len(lines))
	return lines[start:end], total
}

// Render formats paged lines as a bot reply: the no-result text for an empty
// list, a single block when everything fits, the requested page otherwise.
func Render(lines []string, rowsPerPage, page int) string {
	if len(lines) == 0 {
		return NoResult()
	}
	pageLines, total := Paginate(lines, rowsPerPage, page)
	if total == 1 && page <= 1 {
		return Unpaged(strings.Join(lines, "\n"), len(lines))
	}
	if pageLines == nil {
		return PageTooLarge(total)
	}
	return Paged(strings.Join(pageLines, "\n"), len(lines), page, total)
}
