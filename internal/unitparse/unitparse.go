// Package unitparse resolves free-text quantity phrasing from receipts
// ("แพ็ค 6 กระป๋อง", "pack of 6 cans", "x12") into a canonical
// (quantity, unit, confidence) triple. It is pure heuristics with no I/O;
// the AI validator refines its output when the model is reachable.
package unitparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind tags how a resolution was produced.
type Kind string

const (
	// Resolved means a quantity and unit were read directly from the text.
	Resolved Kind = "resolved"
	// Defaulted means the text was unparseable and safe defaults were used.
	Defaulted Kind = "defaulted"
)

// Resolution is the outcome of parsing quantity text. Quantity is always
// >= 1 and Confidence within [0,1]; parsing never fails.
type Resolution struct {
	Kind       Kind
	Quantity   int
	Unit       string
	Confidence float64
	// Reason explains a Defaulted resolution for logging and review flags.
	Reason string
}

// FallbackUnit is used when neither the text nor the matched product names a
// recognized unit.
const FallbackUnit = "ชิ้น"

// UnmatchedConfidenceCap keeps confidence below the auto-trust band when no catalog
// product anchors the unit.
const UnmatchedConfidenceCap = 0.75

// canonicalUnits maps surface forms (Thai, abbreviations, English) to the
// canonical stock unit stored on catalog products.
var canonicalUnits = map[string]string{
	"ชิ้น": "ชิ้น", "อัน": "ชิ้น", "piece": "ชิ้น", "pieces": "ชิ้น", "pc": "ชิ้น", "pcs": "ชิ้น",
	"กระป๋อง": "กระป๋อง", "ป๋อง": "กระป๋อง", "can": "กระป๋อง", "cans": "กระป๋อง",
	"ขวด": "ขวด", "bottle": "ขวด", "bottles": "ขวด",
	"แพ็ค": "แพ็ค", "แพค": "แพ็ค", "แพ็ก": "แพ็ค", "pack": "แพ็ค", "packs": "แพ็ค",
	"กล่อง": "กล่อง", "box": "กล่อง", "boxes": "กล่อง",
	"ถุง": "ถุง", "bag": "ถุง", "bags": "ถุง",
	"ห่อ": "ห่อ", "ซอง": "ซอง", "แผง": "แผง", "ลัง": "ลัง", "โหล": "โหล",
	"ลูก": "ลูก", "ใบ": "ใบ", "ฟอง": "ฟอง", "มัด": "มัด", "หัว": "หัว", "กำ": "กำ",
	"กิโลกรัม": "กิโลกรัม", "กิโล": "กิโลกรัม", "กก": "กิโลกรัม", "kg": "กิโลกรัม",
	"กรัม": "กรัม", "g": "กรัม",
	"ลิตร": "ลิตร", "l": "ลิตร", "liter": "ลิตร", "litre": "ลิตร",
}

// container units usually wrap a base unit; a number bound to one of these is
// kept but trusted less when the matched product counts in something else.
var containerUnits = map[string]bool{
	"แพ็ค": true, "ลัง": true, "โหล": true, "กล่อง": true,
}

// sizeUnits describe package size, not purchase quantity ("โค้ก 325 มล.").
// Numbers bound to them are discarded so a volume never becomes a count.
var sizeUnits = []string{"มิลลิลิตร", "มล", "ซีซี", "ml", "cc", "oz", "ออนซ์"}

// Matches an optional x/× prefix, a number (Arabic or Thai numerals), then
// the run of letters that may name a unit. Thai often omits the space
// ("12ขวด"), so the unit is captured adjacent to the digits.
var numberUnit = regexp.MustCompile(`[x×]?\s*([0-9๐-๙]+)\s*([a-zA-Z\x{0E01}-\x{0E5B}]*)`)

// CanonicalUnit folds a surface form to its canonical stock unit.
func CanonicalUnit(s string) (string, bool) {
	u, ok := canonicalUnits[strings.ToLower(strings.TrimSpace(s))]
	return u, ok
}

type pair struct {
	qty  int
	unit string // canonical, or "" when the trailing word is not a unit
}

// scan extracts (number, unit) pairs from text in order of appearance.
// Unit words are matched by longest known prefix of the trailing letters, so
// "6กระป๋องเย็น" still yields กระป๋อง.
func scan(text string) []pair {
	var pairs []pair
	for _, m := range numberUnit.FindAllStringSubmatch(text, -1) {
		qty := parseNumber(m[1])
		if qty <= 0 {
			continue
		}
		unit := ""
		if m[2] != "" {
			if isSizeWord(m[2]) {
				continue
			}
			unit = longestUnitPrefix(m[2])
		}
		pairs = append(pairs, pair{qty: qty, unit: unit})
	}
	return pairs
}

// isSizeWord reports whether the word following a number describes package
// size rather than quantity.
func isSizeWord(word string) bool {
	lower := strings.ToLower(word)
	for _, s := range sizeUnits {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// longestUnitPrefix finds the longest canonical unit whose surface form
// prefixes word.
func longestUnitPrefix(word string) string {
	lower := strings.ToLower(word)
	best := ""
	bestLen := 0
	for surface, canonical := range canonicalUnits {
		if strings.HasPrefix(lower, surface) && len(surface) > bestLen {
			best = canonical
			bestLen = len(surface)
		}
	}
	return best
}

// parseNumber converts Arabic or Thai numeral strings to an int.
func parseNumber(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '๐' && r <= '๙' {
			b.WriteRune('0' + (r - '๐'))
		} else {
			b.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

// Parse resolves quantity text against an optional anchor unit (the matched
// product's stock unit). quantityHint is scanned before originalText since it
// is the extractor's dedicated quantity field.
//
// Resolution rules, in order:
//  1. a number bound to the anchor unit wins ("แพ็ค 6 กระป๋อง" with anchor
//     กระป๋อง resolves to 6 กระป๋อง);
//  2. otherwise the last number bound to a non-container unit;
//  3. otherwise any number at all, with the unit taken from the anchor;
//  4. no number defaults to quantity 1 at low confidence.
//
// Without an anchor, confidence is capped below the auto-trust band so the
// item is always surfaced for review.
func Parse(originalText, quantityHint, anchorUnit string) Resolution {
	pairs := scan(quantityHint)
	if len(pairs) == 0 {
		pairs = scan(originalText)
	}

	res := resolve(pairs, anchorUnit)
	if anchorUnit == "" && res.Confidence > UnmatchedConfidenceCap {
		res.Confidence = UnmatchedConfidenceCap
	}
	if res.Quantity < 1 {
		res.Quantity = 1
	}
	return res
}

func resolve(pairs []pair, anchorUnit string) Resolution {
	if len(pairs) == 0 {
		unit := anchorUnit
		if unit == "" {
			unit = FallbackUnit
		}
		return Resolution{
			Kind:       Defaulted,
			Quantity:   1,
			Unit:       unit,
			Confidence: 0.3,
			Reason:     "no quantity found in text",
		}
	}

	// Rule 1: number bound to the anchor unit.
	if anchorUnit != "" {
		for _, p := range pairs {
			if p.unit == anchorUnit {
				return Resolution{Kind: Resolved, Quantity: p.qty, Unit: anchorUnit, Confidence: 0.95}
			}
		}
	}

	// Rule 2: last number bound to a non-container recognized unit.
	for i := len(pairs) - 1; i >= 0; i-- {
		p := pairs[i]
		if p.unit == "" || containerUnits[p.unit] {
			continue
		}
		unit := p.unit
		conf := 0.85
		if anchorUnit != "" && unit != anchorUnit {
			// Normalize to the catalog's unit; the count read from the
			// receipt probably refers to it, but flag for review.
			unit = anchorUnit
			conf = 0.6
		}
		return Resolution{Kind: Resolved, Quantity: p.qty, Unit: unit, Confidence: conf}
	}

	// Rule 2b: a container unit with no inner count ("2 แพ็ค").
	for i := len(pairs) - 1; i >= 0; i-- {
		p := pairs[i]
		if p.unit == "" {
			continue
		}
		if anchorUnit != "" && p.unit != anchorUnit {
			return Resolution{Kind: Resolved, Quantity: p.qty, Unit: anchorUnit, Confidence: 0.5}
		}
		return Resolution{Kind: Resolved, Quantity: p.qty, Unit: p.unit, Confidence: 0.8}
	}

	// Rule 3: bare number.
	unit := anchorUnit
	conf := 0.7
	kind := Resolved
	reason := ""
	if unit == "" {
		unit = FallbackUnit
		conf = 0.5
		kind = Defaulted
		reason = "unit inferred, none found in text"
	}
	return Resolution{Kind: kind, Quantity: pairs[0].qty, Unit: unit, Confidence: conf, Reason: reason}
}
