package dispatch

import (
	"strings"
	"unicode/utf16"

	"github.com/gotd/td/tg"
)

// Section headings rendered in italics.
var sectionLabels = map[string]bool{"Feed": true, "Messages": true}

// reportEntities marks the first line of the report bold and the section
// headings italic. Offsets and lengths are in UTF-16 code units.
func reportEntities(text string) []tg.MessageEntityClass {
	var entities []tg.MessageEntityClass
	offset := 0
	for i, line := range strings.Split(text, "\n") {
		n := utf16Len(line)
		switch {
		case n == 0:
		case i == 0:
			entities = append(entities, &tg.MessageEntityBold{Offset: offset, Length: n})
		case sectionLabels[strings.TrimSpace(line)]:
			entities = append(entities, &tg.MessageEntityItalic{Offset: offset, Length: n})
		}
		offset += n + 1
	}
	return entities
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
