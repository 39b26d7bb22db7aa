package tui

import "strings"

// DraftOptions is what the user wants produced for each video.
type DraftOptions struct {
	Formats   []string
	Correct   bool
	Summarize bool
	Keywords  bool
}

const (
	optCorrect   = "opt:correct"
	optSummarize = "opt:summarize"
	optKeywords  = "opt:keywords"
)

var formatLabels = map[string]string{
	"md":   "Markdown (.md)",
	"txt":  "Plain text (.txt)",
	"docx": "Word document (.docx)",
	"srt":  "Subtitles (.srt)",
	"vtt":  "Web subtitles (.vtt)",
}

// draftCheckboxes builds the checkbox list for formats followed by the
// language model steps, pre-checked from defaults.
func draftCheckboxes(formats []string, defaults DraftOptions) []CheckboxOption {
	wanted := make(map[string]bool, len(defaults.Formats))
	for _, f := range defaults.Formats {
		wanted[strings.ToLower(f)] = true
	}

	var options []CheckboxOption
	for _, f := range formats {
		label := formatLabels[f]
		if label == "" {
			label = f
		}
		options = append(options, CheckboxOption{Label: label, Value: f, Checked: wanted[f]})
	}
	return append(options,
		CheckboxOption{Label: "Correct transcript with language model", Value: optCorrect, Checked: defaults.Correct},
		CheckboxOption{Label: "Write a summary", Value: optSummarize, Checked: defaults.Summarize},
		CheckboxOption{Label: "Extract keywords", Value: optKeywords, Checked: defaults.Keywords},
	)
}

// parseDraftSelection turns checkbox values back into options.
func parseDraftSelection(selected []string) *DraftOptions {
	opts := &DraftOptions{}
	for _, v := range selected {
		switch v {
		case optCorrect:
			opts.Correct = true
		case optSummarize:
			opts.Summarize = true
		case optKeywords:
			opts.Keywords = true
		default:
			opts.Formats = append(opts.Formats, v)
		}
	}
	return opts
}

// RunOptionsSelector asks which documents to write and which language
// model steps to run. It returns nil when the user cancels.
func RunOptionsSelector(videoCount int, formats []string, defaults DraftOptions) (*DraftOptions, error) {
	title := "What should be written for the selected videos?"
	if videoCount == 1 {
		title = "What should be written?"
	}

	selected, err := RunCheckbox(title, draftCheckboxes(formats, defaults), 1)
	if err != nil {
		return nil, err
	}
	if selected == nil {
		return nil, nil
	}
	return parseDraftSelection(selected), nil
}
