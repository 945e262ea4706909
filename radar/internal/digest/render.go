package digest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gingfrederik/docx"
)

var funcs = template.FuncMap{
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"rate":  formatRate,
	"score": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"ago": func(t, now time.Time) string {
		if t.IsZero() {
			return "unknown"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"join": strings.Join,
}

var htmlTmpl = template.Must(template.New("digest").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Subject}}</title>
<style>
body{font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;max-width:760px;margin:0 auto;padding:24px;color:#1f2328;background:#fff}
h1{font-size:24px;margin-bottom:4px}
.meta{color:#59636e;font-size:13px;margin-bottom:24px}
.item{border:1px solid #d1d9e0;border-radius:8px;padding:16px;margin-bottom:14px}
.item h2{font-size:17px;margin:0 0 6px}
.item a{color:#0969da;text-decoration:none}
.stats{color:#59636e;font-size:13px;margin-bottom:8px}
.tag{display:inline-block;background:#ddf4ff;color:#0550ae;border-radius:12px;padding:1px 8px;font-size:12px;margin-right:4px}
.summary{font-size:14px;line-height:1.5;white-space:pre-line}
.scores{color:#59636e;font-size:12px;margin-top:8px}
.empty{color:#59636e;font-style:italic}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{.Date}} &middot; {{len .Items}} of {{.Total}} ranked projects &middot; run {{.RunID}}</div>
{{- $now := .GeneratedAt}}
{{- range .Items}}
<div class="item">
  <h2>#{{.Rank}} <a href="{{.URL}}">{{.ID}}</a></h2>
  <div class="stats">&#9733; {{comma .Stars}} &middot; {{rate .GrowthRate}} ({{.GrowthSource}}) &middot; {{comma .Forks}} forks{{if .Language}} &middot; {{.Language}}{{end}} &middot; updated {{ago .UpdatedAt $now}}</div>
  <div>{{range .Channels}}<span class="tag">{{.}}</span>{{end}}</div>
  <p class="summary">{{.Summary}}</p>
  <div class="scores">priority {{score .Scores.Priority}} &middot; relevance {{score .Scores.Relevance}} &middot; growth {{score .Scores.Growth}} &middot; quality {{score .Scores.Quality}}</div>
</div>
{{- else}}
<p class="empty">No projects matched this run.</p>
{{- end}}
</body>
</html>
`))

// formatRate renders a growth rate as "+12.3 stars/day".
func formatRate(r float64) string {
	return fmt.Sprintf("%+.1f stars/day", r)
}

// RenderHTML writes the digest as a self-contained HTML page suitable for
// an e-mail body.
func RenderHTML(w io.Writer, d *Digest) error {
	if err := htmlTmpl.Execute(w, d); err != nil {
		return fmt.Errorf("digest: render html: %w", err)
	}
	return nil
}

// HTML returns the rendered HTML page.
func HTML(d *Digest) (string, error) {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteJSON writes the digest as indented JSON.
func WriteJSON(w io.Writer, d *Digest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("digest: encode json: %w", err)
	}
	return nil
}

// Text renders a compact plain-text list for chat webhooks.
func Text(d *Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.Subject())
	if len(d.Items) == 0 {
		b.WriteString("No projects matched this run.\n")
		return b.String()
	}
	for _, it := range d.Items {
		fmt.Fprintf(&b, "%d. %s  ★%s  %s  [%s]\n   %s\n   %s\n",
			it.Rank, it.ID, humanize.Comma(int64(it.Stars)), formatRate(it.GrowthRate),
			strings.Join(it.Channels, ", "), oneLine(it.Summary), it.URL)
	}
	return b.String()
}

// oneLine collapses whitespace so a summary fits on one chat line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WriteDOCX saves the digest as a Word document at path.
func WriteDOCX(path string, d *Digest) error {
	f := docx.NewFile()

	title := f.AddParagraph().AddText(d.Subject())
	title.Size(20)
	f.AddParagraph()

	if len(d.Items) == 0 {
		f.AddParagraph().AddText("No projects matched this run.")
	}
	for _, it := range d.Items {
		run := f.AddParagraph().AddText(fmt.Sprintf("#%d %s", it.Rank, it.ID))
		run.Size(16)

		run = f.AddParagraph().AddText(fmt.Sprintf("%s stars | %s | channels: %s | priority %.1f",
			humanize.Comma(int64(it.Stars)), formatRate(it.GrowthRate),
			strings.Join(it.Channels, ", "), it.Scores.Priority))
		run.Size(10)
		run.Color("808080")

		run = f.AddParagraph().AddText(it.URL)
		run.Size(10)
		run.Color("0000FF")

		for _, p := range strings.Split(it.Summary, "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				f.AddParagraph().AddText(p)
			}
		}
		f.AddParagraph()
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("digest: save docx: %w", err)
	}
	return nil
}

// Paths lists the output files of WriteFiles. Empty paths are skipped.
type Paths struct {
	HTML string
	JSON string
	DOCX string
}

// WriteFiles writes every configured output format. HTML and JSON are
// written atomically.
func WriteFiles(d *Digest, p Paths) error {
	if p.HTML != "" {
		html, err := HTML(d)
		if err != nil {
			return err
		}
		if err := writeAtomic(p.HTML, []byte(html)); err != nil {
			return err
		}
	}
	if p.JSON != "" {
		var buf bytes.Buffer
		if err := WriteJSON(&buf, d); err != nil {
			return err
		}
		if err := writeAtomic(p.JSON, buf.Bytes()); err != nil {
			return err
		}
	}
	if p.DOCX != "" {
		if err := WriteDOCX(p.DOCX, d); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("digest: create dir: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("digest: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("digest: rename %s: %w", tmp, err)
	}
	return nil
}
