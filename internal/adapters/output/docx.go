package output

import (
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"

	"github.com/devbush/vdraft/internal/ports"
)

const (
	fontName      = "Times New Roman"
	fontSize      = 12
	titleFontSize = 16
	metaFontSize  = 10
)

func writeDocx(doc ports.Document, path string) error {
	d, err := godocx.NewDocument()
	if err != nil {
		return err
	}

	addRun(d.AddParagraph(""), titleOf(doc), titleFontSize, true)
	for _, line := range metadataLines(doc.Metadata) {
		addRun(d.AddParagraph(""), line, metaFontSize, false)
	}
	d.AddParagraph("")

	for _, para := range paragraphs(doc.Content) {
		addRun(d.AddParagraph(""), para, fontSize, false)
	}

	return d.SaveTo(path)
}

func addRun(p *docx.Paragraph, text string, size uint64, bold bool) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}

// paragraphs splits text on blank lines, joining wrapped lines.
func paragraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		lines := strings.Fields(strings.ReplaceAll(block, "\n", " "))
		if len(lines) == 0 {
			continue
		}
		out = append(out, strings.Join(lines, " "))
	}
	return out
}
