package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Field pulls one labelled value out of a document fragment.
// Implementations return "" when their markup is absent, never an error.
type Field interface {
	Name() string
	Extract(sel *goquery.Selection) string
}

// Extractor applies a fixed set of fields to a fragment
type Extractor struct {
	Fields []Field
}

// NewExtractor creates a new data extractor
func NewExtractor(fields ...Field) *Extractor {
	return &Extractor{
		Fields: fields,
	}
}

// Extract runs every field and returns the values keyed by field name.
// Absent fields are present in the map with an empty value.
func (e *Extractor) Extract(sel *goquery.Selection) map[string]string {
	extracted := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		extracted[f.Name()] = f.Extract(sel)
	}
	return extracted
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// Clean trims s and collapses inner whitespace runs to one space.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// NormalizeLabel lowercases a label and strips footnote markers and the trailing colon.
func NormalizeLabel(label string) string {
	label = strings.ToLower(Clean(label))
	label = strings.TrimRight(label, ":* ")
	label = strings.ReplaceAll(label, "*", "")
	return strings.TrimSpace(label)
}

// Selector returns the text of the first element matching CSS.
type Selector struct {
	Key string
	CSS string
}

func (f Selector) Name() string { return f.Key }

func (f Selector) Extract(sel *goquery.Selection) string {
	return Clean(sel.Find(f.CSS).First().Text())
}

// Labeled returns the text that follows a <span class="label"> inside its cell.
// This is how the register lays out search result cards.
type Labeled struct {
	Key   string
	Label string
}

func (f Labeled) Name() string { return f.Key }

func (f Labeled) Extract(sel *goquery.Selection) string {
	cell := LabeledCell(sel, f.Label)
	if cell == nil {
		return ""
	}
	label := Clean(cell.Find("span.label").First().Text())
	return Clean(strings.TrimPrefix(Clean(cell.Text()), label))
}

// LabeledCell finds the element wrapping the span.label whose text matches label.
func LabeledCell(sel *goquery.Selection, label string) *goquery.Selection {
	want := NormalizeLabel(label)
	var cell *goquery.Selection
	sel.Find("span.label").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if NormalizeLabel(s.Text()) != want {
			return true
		}
		cell = s.Parent()
		return false
	})
	return cell
}

// Row finds a table row by the text of its label cell and returns its value cell.
// With All set, every matching row contributes and values are joined with "; ".
type Row struct {
	Key       string
	Label     string
	LabelCell string
	ValueCell string
	All       bool
}

// Code selects a protocol row by its register code, e.g. "A.4.1".
func Code(key, code string) Row {
	return Row{Key: key, Label: code, LabelCell: "td.first", ValueCell: "td.third"}
}

// CodeAll is Code for fields that repeat, such as one row per IMP.
func CodeAll(key, code string) Row {
	r := Code(key, code)
	r.All = true
	return r
}

// Described selects a protocol row by its description rather than its code.
func Described(key, description string) Row {
	return Row{Key: key, Label: description, LabelCell: "td.second", ValueCell: "td.third"}
}

// ResultRow selects a results-page row by its label text.
func ResultRow(key, label string) Row {
	return Row{Key: key, Label: label, LabelCell: "td.labelColumn", ValueCell: "td.valueColumn"}
}

func (f Row) Name() string { return f.Key }

func (f Row) Extract(sel *goquery.Selection) string {
	want := NormalizeLabel(f.Label)
	var values []string
	sel.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		label := NormalizeLabel(tr.ChildrenFiltered(f.LabelCell).First().Text())
		if label == "" || label != want {
			return true
		}
		value := Clean(tr.ChildrenFiltered(f.ValueCell).First().Text())
		if value != "" {
			values = append(values, value)
		}
		return f.All
	})
	return strings.Join(values, "; ")
}

// Flags lists the descriptions of protocol rows under a code prefix whose value is "Yes".
// The register reports population groups this way (F.1.1, F.1.2, ...).
type Flags struct {
	Key        string
	CodePrefix string
}

func (f Flags) Name() string { return f.Key }

func (f Flags) Extract(sel *goquery.Selection) string {
	var groups []string
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		code := Clean(tr.ChildrenFiltered("td.first").First().Text())
		if !strings.HasPrefix(code, f.CodePrefix) {
			return
		}
		if !strings.EqualFold(Clean(tr.ChildrenFiltered("td.third").First().Text()), "yes") {
			return
		}
		if desc := Clean(tr.ChildrenFiltered("td.second").First().Text()); desc != "" {
			groups = append(groups, desc)
		}
	})
	return strings.Join(groups, "; ")
}

// NestedTable reads one column of the first data row of a table nested in a labelled cell.
type NestedTable struct {
	Key    string
	Label  string
	Column string
}

func (f NestedTable) Name() string { return f.Key }

func (f NestedTable) Extract(sel *goquery.Selection) string {
	cell := LabeledCell(sel, f.Label)
	if cell == nil {
		return ""
	}
	rows := cell.Find("table tr")
	if rows.Length() < 2 {
		return ""
	}

	want := NormalizeLabel(f.Column)
	index := -1
	rows.First().Children().EachWithBreak(func(i int, c *goquery.Selection) bool {
		if NormalizeLabel(c.Text()) == want {
			index = i
			return false
		}
		return true
	})
	if index < 0 {
		return ""
	}
	return Clean(rows.Eq(1).Children().Eq(index).Text())
}

// Match applies a regular expression to another field and returns the first
// capture group, or the whole match when the pattern has no groups.
type Match struct {
	Field   Field
	Pattern *regexp.Regexp
}

func (f Match) Name() string { return f.Field.Name() }

func (f Match) Extract(sel *goquery.Selection) string {
	m := f.Pattern.FindStringSubmatch(f.Field.Extract(sel))
	switch len(m) {
	case 0:
		return ""
	case 1:
		return m[0]
	default:
		return m[1]
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"2 January 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// Date normalises another field's value to YYYY-MM-DD. Values it cannot parse
// are returned unchanged.
type Date struct {
	Field Field
}

func (f Date) Name() string { return f.Field.Name() }

func (f Date) Extract(sel *goquery.Selection) string {
	return NormalizeDate(f.Field.Extract(sel))
}

// NormalizeDate returns s as YYYY-MM-DD when it matches a known layout.
func NormalizeDate(s string) string {
	s = Clean(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
