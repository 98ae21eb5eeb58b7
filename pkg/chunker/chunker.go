// Package chunker splits document text into pieces sized for embedding.
package chunker

import (
	"strings"
	"unicode/utf8"
)

type Options struct {
	Size     int    // target piece size in runes
	Overlap  int    // overlap between consecutive fixed pieces
	Strategy string // "paragraph", "sentence", "fixed"
}

type Piece struct {
	Text  string
	Index int
}

func DefaultOptions() Options {
	return Options{Size: 1000, Overlap: 200, Strategy: "paragraph"}
}

// Split breaks text into pieces. Paragraph mode packs paragraphs up to the
// target size, falling back to sentences for paragraphs that are too long;
// fixed mode slides a window with overlap.
func Split(text string, opts Options) []Piece {
	if opts.Size <= 0 {
		opts.Size = 1000
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = 0
	}

	var texts []string
	switch opts.Strategy {
	case "fixed":
		texts = splitFixed(text, opts.Size, opts.Overlap)
	case "sentence":
		texts = pack(sentences(text), opts.Size)
	default:
		texts = splitParagraphs(text, opts.Size)
	}

	pieces := make([]Piece, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		pieces = append(pieces, Piece{Text: t, Index: len(pieces)})
	}
	return pieces
}

func splitFixed(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func splitParagraphs(text string, size int) []string {
	var units []string
	for _, p := range strings.Split(text, "\n\n") {
		if utf8.RuneCountInString(p) <= size {
			units = append(units, p)
			continue
		}
		// Oversized paragraph: break it down by sentence, then by window.
		for _, s := range sentences(p) {
			if utf8.RuneCountInString(s) <= size {
				units = append(units, s)
			} else {
				units = append(units, splitFixed(s, size, 0)...)
			}
		}
	}
	return pack(units, size)
}

// pack greedily joins consecutive units into pieces no larger than size.
func pack(units []string, size int) []string {
	var out []string
	var current strings.Builder
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+utf8.RuneCountInString(u)+1 > size {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(u)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func sentences(text string) []string {
	var out []string
	var current strings.Builder
	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			out = append(out, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
