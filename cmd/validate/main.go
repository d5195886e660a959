// Command validate checks captured CWA payloads offline. Each file is run
// through the same normalizer the service uses, then checked for natural
// key completeness, duplicate keys, and defaulted leaves.
//
// Usage:
//
//	go run ./cmd/validate -feed warning testdata/W-C0033-002.json
//	go run ./cmd/validate -feed earthquake dumps/*.json
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/weather-broadcast-service/internal/adapter/cwa"
	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	feed := flag.String("feed", "", "feed of the payloads: warning, earthquake, or forecast")
	flag.Parse()

	if !domain.Feed(*feed).Valid() || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(domain.Feed(*feed), flag.Args()))
}

func run(feed domain.Feed, paths []string) int {
	fmt.Printf("=== CWA %s payload validation ===\n\n", feed.DatasetID())

	shape := &phase{name: "Payload shape"}
	keys := &phase{name: "Natural keys"}
	leaves := &phase{name: "Required leaves"}

	seen := make(map[string]string)
	total := 0
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", path, err)
			return 1
		}
		events, err := cwa.Normalize(feed, body)
		if err != nil {
			shape.errorf("%s: %v", path, err)
			continue
		}
		total += len(events)
		for i, e := range events {
			checkKey(keys, seen, path, i, e)
			checkLeaves(leaves, path, i, e)
		}
	}

	phases := []*phase{shape, keys, leaves}
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Printf("\nFiles: %d, events: %d, distinct keys: %d\n", len(paths), total, len(seen))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// checkKey flags incomplete keys and keys repeated within one file. The same
// key in two different files is expected when consecutive polls overlap.
func checkKey(p *phase, seen map[string]string, path string, i int, e domain.NormalizedEvent) {
	if e.Feed == domain.FeedForecast {
		return
	}
	k := e.Key
	switch {
	case e.Feed == domain.FeedEarthquake && isBlank(k.EarthquakeNo):
		p.errorf("%s[%d]: earthquake without EarthquakeNo", path, i)
		return
	case e.Feed == domain.FeedWarning && (isBlank(k.IssueTime) || isBlank(k.Title)):
		p.errorf("%s[%d]: warning key incomplete: %s", path, i, k)
		return
	}
	if prev, ok := seen[k.String()]; ok && prev == path {
		p.errorf("%s[%d]: duplicate key %s", path, i, k)
	}
	seen[k.String()] = path
}

func checkLeaves(p *phase, path string, i int, e domain.NormalizedEvent) {
	if isBlank(e.Title) {
		p.errorf("%s[%d]: title defaulted", path, i)
	}
	if e.Feed != domain.FeedForecast && isBlank(e.Content) {
		p.errorf("%s[%d] %q: content defaulted", path, i, e.Title)
	}
	if len(e.AffectedAreas) == 0 {
		p.errorf("%s[%d] %q: no affected areas", path, i, e.Title)
	}
}

func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == domain.Placeholder
}
