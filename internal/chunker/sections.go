package chunker

import (
	"regexp"
	"sort"
)

// sectionSignature is a priority-ordered boundary pattern for one
// document class. When two signatures match at the same offset the
// higher priority wins (a claims heading always beats a narrative
// heading).
type sectionSignature struct {
	heading  string
	priority int
	primary  bool
	pattern  *regexp.Regexp
}

// Patent section signatures. Claims are the primary section and get
// split one chunk per enumerated claim.
var patentSignatures = []sectionSignature{
	{
		heading:  "claims",
		priority: 100,
		primary:  true,
		pattern:  regexp.MustCompile(`(?mi)^\s*(?:what is claimed is:?|i/we claim:?|claims?)\s*$`),
	},
	{
		heading:  "abstract",
		priority: 80,
		pattern:  regexp.MustCompile(`(?mi)^\s*abstract(?:\s+of\s+the\s+disclosure)?\s*$`),
	},
	{
		heading:  "background",
		priority: 60,
		pattern:  regexp.MustCompile(`(?mi)^\s*background(?:\s+of\s+the\s+invention)?\s*$`),
	},
	{
		heading:  "summary",
		priority: 60,
		pattern:  regexp.MustCompile(`(?mi)^\s*summary(?:\s+of\s+the\s+invention)?\s*$`),
	},
	{
		heading:  "description",
		priority: 40,
		pattern:  regexp.MustCompile(`(?mi)^\s*(?:detailed\s+)?description(?:\s+of\s+the\s+(?:preferred\s+)?embodiments?)?\s*$`),
	},
}

// Classify guesses the document class from extracted text. A patent
// is recognised by its claims heading; anything else is generic and
// falls back to window chunking.
func Classify(text string) DocumentClass {
	for _, sig := range patentSignatures {
		if sig.primary && sig.pattern.MatchString(text) {
			return ClassPatent
		}
	}
	return ClassGeneric
}

// signaturesFor returns the signature set for a document class, nil
// when the class has no known structure.
func signaturesFor(class DocumentClass) []sectionSignature {
	switch class {
	case ClassPatent:
		return patentSignatures
	default:
		return nil
	}
}

// section is one detected region of the document.
type section struct {
	heading   string
	primary   bool
	body      string
	bodyStart int
}

// boundary is a signature match at an offset.
type boundary struct {
	offset   int
	bodyFrom int
	sig      sectionSignature
}

// detectSections finds section boundaries by ordered pattern matching
// and slices the text between them. Returns nil when the class has no
// signatures or nothing matched, which sends the caller to the window
// fallback.
func detectSections(text string, class DocumentClass) []section {
	sigs := signaturesFor(class)
	if len(sigs) == 0 || text == "" {
		return nil
	}

	var bounds []boundary
	for _, sig := range sigs {
		for _, loc := range sig.pattern.FindAllStringIndex(text, -1) {
			bounds = append(bounds, boundary{offset: loc[0], bodyFrom: loc[1], sig: sig})
		}
	}
	if len(bounds) == 0 {
		return nil
	}

	sort.SliceStable(bounds, func(i, j int) bool {
		if bounds[i].offset != bounds[j].offset {
			return bounds[i].offset < bounds[j].offset
		}
		return bounds[i].sig.priority > bounds[j].sig.priority
	})

	// Collapse same-offset matches: priority order means the first
	// survives
	deduped := bounds[:0]
	for _, b := range bounds {
		if len(deduped) > 0 && deduped[len(deduped)-1].offset == b.offset {
			continue
		}
		deduped = append(deduped, b)
	}
	bounds = deduped

	var sections []section

	// Preamble before the first boundary keeps the document flowing
	// through retrieval even when the first heading sits mid-file
	if bounds[0].offset > 0 {
		sections = append(sections, section{
			heading:   "preamble",
			body:      text[:bounds[0].offset],
			bodyStart: 0,
		})
	}

	for i, b := range bounds {
		end := len(text)
		if i < len(bounds)-1 {
			end = bounds[i+1].offset
		}
		sections = append(sections, section{
			heading:   b.sig.heading,
			primary:   b.sig.primary,
			body:      text[b.bodyFrom:end],
			bodyStart: b.bodyFrom,
		})
	}

	return sections
}

// enumerated is one numbered sub-item of a primary section.
type enumerated struct {
	text  string
	start int
	end   int
}

// claimItemPattern matches the start of an enumerated claim such as
// "1. A method ..." at the beginning of a line.
var claimItemPattern = regexp.MustCompile(`(?m)^\s*\d+\s*\.\s`)

// splitEnumerated splits a primary section body into its numbered
// items. When fewer than two items are found the caller keeps the
// section whole.
func splitEnumerated(body string) []enumerated {
	locs := claimItemPattern.FindAllStringIndex(body, -1)
	if len(locs) < 2 {
		return nil
	}

	items := make([]enumerated, 0, len(locs))
	for i, loc := range locs {
		end := len(body)
		if i < len(locs)-1 {
			end = locs[i+1][0]
		}
		items = append(items, enumerated{
			text:  body[loc[0]:end],
			start: loc[0],
			end:   end,
		})
	}
	return items
}
