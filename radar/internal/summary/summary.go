package summary

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// NoDescription is returned when neither a README nor a description exists.
const NoDescription = "No description provided."

const (
	// maxCodeLines is the longest code block kept in a summary.
	maxCodeLines = 3
	// maxIntroBlocks bounds the blocks taken from an About-style section.
	maxIntroBlocks = 3
	// maxParagraphs bounds the fallback paragraph extraction.
	maxParagraphs = 3
	// minParagraph is the length below which a paragraph is noise.
	minParagraph = 20
	// minMeaningful is the length below which a summary is not worth showing.
	minMeaningful = 20
)

var reRule = regexp.MustCompile("^[-_=*`#\\s.]+$")

var markdown = goldmark.New()

// introHeadings mark a section whose body is the project's own description.
var introHeadings = []string{"about", "introduction", "overview", "what is"}

// skipHeadings mark sections that never describe the project itself.
var skipHeadings = []string{
	"contributing", "license", "authors", "acknowledgments", "acknowledgements",
	"changelog", "to do", "todo", "see also", "references",
}

// noiseWords flag short summaries that are really navigation or boilerplate.
var noiseWords = []string{"table of contents", "language", "license", "contributing"}

// For returns the digest text for a repository: the README summary when it
// is meaningful, otherwise the repository description, otherwise
// NoDescription.
func For(readme, description string, maxLen int) string {
	if s := Summarize(readme, maxLen); s != NoDescription && Meaningful(s) {
		return s
	}
	if d := strings.TrimSpace(description); d != "" {
		return truncate(d, maxLen)
	}
	return NoDescription
}

// Summarize condenses README markdown to at most maxLen characters.
//
// The README is reduced to plain-text blocks: images, HTML markup, link
// targets and code blocks longer than a few lines are dropped. A short
// README is returned whole; otherwise an About/Introduction section or the
// first paragraph is preferred, falling back to the first few substantial
// paragraphs outside Contributing/License-style sections.
func Summarize(readme string, maxLen int) string {
	blocks := parse(readme)
	if len(blocks) == 0 {
		return NoDescription
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.text
	}
	if whole := strings.Join(parts, "\n\n"); utf8.RuneCountInString(whole) <= maxLen {
		return whole
	}
	if intro := extractIntro(blocks); intro != "" {
		return truncate(intro, maxLen)
	}
	if p := paragraphs(blocks, maxParagraphs); len(p) > 0 {
		return truncate(strings.Join(p, "\n\n"), maxLen)
	}
	return NoDescription
}

// Meaningful reports whether s says something about the project rather
// than being a separator, a heading or a table of contents.
func Meaningful(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < minMeaningful {
		return false
	}
	if reRule.MatchString(s) {
		return false
	}
	if utf8.RuneCountInString(s) < 60 {
		lower := strings.ToLower(s)
		for _, w := range noiseWords {
			if strings.Contains(lower, w) {
				return false
			}
		}
	}
	return true
}

// block is one top-level piece of README text. Headings keep their level;
// body text has level 0.
type block struct {
	level int
	text  string
}

func parse(readme string) []block {
	src := []byte(strings.ReplaceAll(readme, "\r\n", "\n"))
	doc := markdown.Parser().Parse(text.NewReader(src))

	var out []block
	add := func(level int, s string) {
		if s != "" {
			out = append(out, block{level: level, text: s})
		}
	}
	var visit func(parent ast.Node)
	visit = func(parent ast.Node) {
		for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
			switch n := n.(type) {
			case *ast.Heading:
				add(n.Level, inlineText(n, src))
			case *ast.Paragraph, *ast.TextBlock:
				add(0, inlineText(n, src))
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				if n.Lines().Len() <= maxCodeLines {
					add(0, codeText(n, src))
				}
			case *ast.HTMLBlock:
				add(0, htmlText(n, src))
			case *ast.ThematicBreak:
			default:
				visit(n)
			}
		}
	}
	visit(doc)
	return out
}

// inlineText flattens the inline children of n: link text is kept, an empty
// link keeps its URL, and images and raw HTML tags are dropped.
func inlineText(n ast.Node, src []byte) string {
	var b bytes.Buffer
	writeInline(&b, n, src)
	return plain(b.Bytes())
}

func writeInline(b *bytes.Buffer, parent ast.Node, src []byte) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.Image, *ast.RawHTML:
		case *ast.Link:
			var label bytes.Buffer
			writeInline(&label, n, src)
			if len(bytes.TrimSpace(label.Bytes())) == 0 && !hasImage(n) {
				b.Write(n.Destination)
			} else {
				b.Write(label.Bytes())
			}
		case *ast.AutoLink:
			b.Write(n.Label(src))
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		default:
			writeInline(b, n, src)
		}
	}
}

func hasImage(n ast.Node) bool {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*ast.Image); ok {
			return true
		}
	}
	return false
}

func codeText(n ast.Node, src []byte) string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if l := strings.TrimSpace(string(seg.Value(src))); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, " ")
}

// htmlText returns the visible text of a raw HTML block.
func htmlText(n *ast.HTMLBlock, src []byte) string {
	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	if n.HasClosure() {
		b.Write(n.ClosureLine.Value(src))
	}
	doc, err := goquery.NewDocumentFromReader(&b)
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// plain resolves escapes and entities and collapses whitespace.
func plain(raw []byte) string {
	raw = util.UnescapePunctuations(raw)
	raw = util.ResolveNumericReferences(raw)
	raw = util.ResolveEntityNames(raw)
	return strings.Join(strings.Fields(string(raw)), " ")
}

func headingHasAny(heading string, words []string) bool {
	lower := strings.ToLower(heading)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// extractIntro returns the body of the first About-style section, or else
// the first substantial paragraph.
func extractIntro(blocks []block) string {
	for i, b := range blocks {
		if b.level < 2 || !headingHasAny(b.text, introHeadings) {
			continue
		}
		var out []string
		for _, body := range blocks[i+1:] {
			if body.level > 0 || len(out) == maxIntroBlocks {
				break
			}
			out = append(out, body.text)
		}
		if len(out) > 0 {
			return strings.Join(out, " ")
		}
	}

	for _, b := range blocks {
		if b.level == 0 && utf8.RuneCountInString(b.text) > minParagraph {
			return b.text
		}
	}
	return ""
}

// paragraphs returns up to limit substantial paragraphs, skipping the
// bodies of boilerplate sections.
func paragraphs(blocks []block, limit int) []string {
	var (
		out  []string
		skip bool
	)
	for _, b := range blocks {
		if len(out) >= limit {
			break
		}
		if b.level > 0 {
			skip = headingHasAny(b.text, skipHeadings)
			continue
		}
		if !skip && utf8.RuneCountInString(b.text) > minParagraph {
			out = append(out, b.text)
		}
	}
	return out
}

// truncate cuts s to maxLen characters, preferring a word boundary in the
// second half, and marks the cut with "...".
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	cut := string(runes[:maxLen-3])
	if i := strings.LastIndex(cut, " "); i >= 0 && utf8.RuneCountInString(cut[:i]) > maxLen/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ") + "..."
}
