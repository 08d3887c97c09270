// Package registertest serves a fixed, in-memory copy of the register for tests.
package registertest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Trial describes one trial served by the fake register.
type Trial struct {
	ID      string
	Title   string
	Sponsor string
	// States maps member state code to its status, in listing order.
	States [][2]string
	// HasResults publishes a results page for the trial.
	HasResults bool
}

// Register is an httptest server answering search, card, protocol and result
// requests from canned pages.
type Register struct {
	Server *httptest.Server

	mu       sync.Mutex
	pages    map[string]string
	statuses map[string]int
	requests []string
}

// New starts a fake register. Close it with Close.
func New() *Register {
	r := &Register{pages: map[string]string{}, statuses: map[string]int{}}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

// Close stops the server.
func (r *Register) Close() {
	r.Server.Close()
}

// BaseURL is the register root, ending in a slash.
func (r *Register) BaseURL() string {
	return r.Server.URL + "/"
}

// Handle serves body at path (path plus query, as requested).
func (r *Register) Handle(path, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[path] = body
}

// Fail answers every request for path with status.
func (r *Register) Fail(path string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[path] = status
}

// Requests returns every path requested so far.
func (r *Register) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

// Count returns how many times path was requested.
func (r *Register) Count(path string) int {
	n := 0
	for _, p := range r.Requests() {
		if p == path {
			n++
		}
	}
	return n
}

func (r *Register) serve(w http.ResponseWriter, req *http.Request) {
	path := req.URL.RequestURI()

	r.mu.Lock()
	r.requests = append(r.requests, path)
	status, failing := r.statuses[path]
	body, ok := r.pages[path]
	r.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// SearchPath is the listing path for a date range and page.
func SearchPath(from, to string, page int) string {
	return fmt.Sprintf("/ctr-search/search?query=&dateFrom=%s&dateTo=%s&page=%d", from, to, page)
}

// CardPath is the search path returning the card of one trial.
func CardPath(id string) string {
	return "/ctr-search/search?query=" + id
}

// ProtocolPath is the protocol page of a trial in one member state.
func ProtocolPath(id, state string) string {
	return "/ctr-search/trial/" + id + "/" + state
}

// ResultPath is the results page of a trial.
func ResultPath(id string) string {
	return "/ctr-search/trial/" + id + "/results"
}

// Publish serves the card, protocol and result pages of every trial and
// splits them over listing pages of pageSize for the date range.
func (r *Register) Publish(from, to string, pageSize int, trials ...Trial) {
	pages := (len(trials) + pageSize - 1) / pageSize
	if pages == 0 {
		r.Handle(SearchPath(from, to, 1), ListingPage(0, 1, 0))
	}
	for p := range pages {
		lo, hi := p*pageSize, min((p+1)*pageSize, len(trials))
		r.Handle(SearchPath(from, to, p+1), ListingPage(len(trials), p+1, pages, trials[lo:hi]...))
	}

	for _, t := range trials {
		r.Handle(CardPath(t.ID), ListingPage(1, 1, 1, t))
		for _, s := range t.States {
			r.Handle(ProtocolPath(t.ID, s[0]), ProtocolPage(t, s[0]))
		}
		if t.HasResults {
			r.Handle(ResultPath(t.ID), ResultPage(t))
		}
	}
}

// ListingPage renders a search page holding the cards of trials.
func ListingPage(total, page, pages int, trials ...Trial) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	if total == 0 {
		b.WriteString(`<div class="outcome grid_12"><span>No results found</span></div>` + "\n")
	} else {
		fmt.Fprintf(&b, `<div class="outcome grid_12"><span>%d result(s) found</span>. Displaying page %d of %d.</div>`+"\n", total, page, pages)
	}
	b.WriteString(`<div class="results grid_8plus">` + "\n")
	for _, t := range trials {
		b.WriteString(Card(t))
	}
	b.WriteString("</div>\n</body></html>\n")
	return b.String()
}

// Card renders the card table of one trial.
func Card(t Trial) string {
	var b strings.Builder
	b.WriteString(`<table class="result">` + "\n")
	fmt.Fprintf(&b, `<tr><td><span class="label">EudraCT Number:</span> %s</td><td><span class="label">Start Date:</span> 2022-12-05</td></tr>`+"\n", t.ID)
	fmt.Fprintf(&b, `<tr><td colspan="3"><span class="label">Sponsor Name:</span>%s</td></tr>`+"\n", t.Sponsor)
	fmt.Fprintf(&b, `<tr><td colspan="3"><span class="label">Full Title:</span> %s</td></tr>`+"\n", t.Title)
	b.WriteString(`<tr><td colspan="3"><span class="label">Trial protocol:</span>` + "\n")
	for _, s := range t.States {
		fmt.Fprintf(&b, `<a href="/ctr-search/trial/%s/%s">%s</a> (%s)`+"\n", t.ID, s[0], s[0], s[1])
	}
	b.WriteString("</td></tr>\n")
	if t.HasResults {
		fmt.Fprintf(&b, `<tr><td colspan="3"><span class="label">Trial results:</span> <a href="/ctr-search/trial/%s/results">View results</a></td></tr>`+"\n", t.ID)
	}
	b.WriteString("</table>\n")
	return b.String()
}

// ProtocolPage renders the protocol of t in one member state.
func ProtocolPage(t Trial, state string) string {
	status := ""
	for _, s := range t.States {
		if s[0] == state {
			status = s[1]
		}
	}
	title := strings.TrimSuffix(t.Title, "...") + " in " + state
	return fmt.Sprintf(`<html><body>
<table id="section-a" class="summary">
<tr><td class="cellBlue" colspan="3">A. Protocol Information</td></tr>
<tr><td class="first">A.1</td><td class="second">Member State Concerned</td><td class="third">%s - Competent Authority</td></tr>
<tr><td class="first">A.2</td><td class="second">EudraCT number</td><td class="third">%s</td></tr>
<tr><td class="first">A.3</td><td class="second">Full title of the trial</td><td class="third">%s</td></tr>
<tr><td class="first">A.4.1</td><td class="second">Sponsor's protocol code number</td><td class="third">P-%s</td></tr>
</table>
<table id="section-b" class="summary">
<tr><td class="cellBlue" colspan="3">B. Sponsor Information</td></tr>
<tr><td class="first">B.1.1</td><td class="second">Name of Sponsor</td><td class="third">%s</td></tr>
</table>
<table id="section-p" class="summary">
<tr><td class="cellBlue" colspan="3">P. End of Trial</td></tr>
<tr><td class="first">P.</td><td class="second">End of Trial Status</td><td class="third">%s</td></tr>
</table>
</body></html>
`, state, t.ID, title, t.ID, t.Sponsor, status)
}

// ResultPage renders the results of t.
func ResultPage(t Trial) string {
	return fmt.Sprintf(`<html><body>
<div id="resultContent">
<table>
<tr><td class="labelColumn">EudraCT number</td><td class="valueColumn">%s</td></tr>
<tr><td class="labelColumn">Results version number</td><td class="valueColumn">v1(current)</td></tr>
<tr><td class="labelColumn">Global end of trial reached?</td><td class="valueColumn">Yes</td></tr>
<tr><td class="labelColumn">Global end of trial date</td><td class="valueColumn">30 Jun 2024</td></tr>
</table>
<table class="endPoint">
<tr><td class="labelColumn">End point title</td><td class="valueColumn">Primary outcome of %s</td></tr>
<tr><td class="labelColumn">End point type</td><td class="valueColumn">Primary</td></tr>
</table>
</div>
</body></html>
`, t.ID, t.ID)
}
