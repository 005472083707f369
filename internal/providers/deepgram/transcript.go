package deepgram

import "strings"

// transcriptAggregator folds Deepgram segment results into one best
// transcription. Finalized segments accumulate; the interim segment is
// replaced by each new interim result. Only the read loop uses it.
type transcriptAggregator struct {
	finals  []string
	interim string
}

func (a *transcriptAggregator) Add(text string, isFinal bool) {
	text = strings.TrimSpace(text)
	if isFinal {
		if text != "" {
			a.finals = append(a.finals, text)
		}
		a.interim = ""
		return
	}
	a.interim = text
}

// Best returns the finalized segments followed by the interim one.
func (a *transcriptAggregator) Best() string {
	parts := a.finals
	if a.interim != "" {
		parts = append(parts[:len(parts):len(parts)], a.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
