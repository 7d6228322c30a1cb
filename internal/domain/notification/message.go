// internal/domain/notification/message.go
package notification

import "strings"

// Summary is a structured message: a title plus ordered sections.
type Summary struct {
	Title    string
	Sections []Section
}

// Section maps to one embed on channels that support rich messages.
type Section struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
}

// Field is a name/value pair within a section.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Text renders the summary as plain text for channels without rich messages.
func (s Summary) Text() string {
	var b strings.Builder
	if s.Title != "" {
		b.WriteString(s.Title)
	}
	for _, sec := range s.Sections {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sec.Text())
	}
	return b.String()
}

// Text renders one section as plain text.
func (s Section) Text() string {
	lines := make([]string, 0, len(s.Fields)+3)
	if s.Title != "" {
		lines = append(lines, s.Title)
	}
	if s.Description != "" {
		lines = append(lines, s.Description)
	}
	for _, f := range s.Fields {
		lines = append(lines, "• "+f.Name+": "+f.Value)
	}
	if s.Footer != "" {
		lines = append(lines, s.Footer)
	}
	return strings.Join(lines, "\n")
}
