// Package normalize folds free text into the canonical form used as the
// embedding cache key. Receipt OCR output and catalog names spell the same
// product a dozen ways; folding them keeps the cache hit rate usable.
package normalize

import (
	"regexp"
	"strings"
	"sync"
)

var punct = regexp.MustCompile(`[.,\-_/\\()\[\]{}!?@#$%^&*+=|~` + "`" + `"'<>]`)

// variants maps common spelling variations to a standard form. Mostly Thai
// brand and produce names where tone marks and transliteration drift.
var variants = map[string]string{
	// Strawberry
	"สตรอว์เบอร์รี่": "สตอเบอรี่",
	"สตรอเบอร์รี่":  "สตอเบอรี่",
	"สตอเบอร์รี่":   "สตอเบอรี่",
	"สตรอเบอรี่":    "สตอเบอรี่",
	"สตรอว์เบอรี่":  "สตอเบอรี่",
	"สตรอเบอรี":     "สตอเบอรี่",
	"สตอเบอร์รี":    "สตอเบอรี่",
	// Blueberry
	"บลูเบอร์รี่": "บลูเบอรี่",
	// Corn
	"ข้าวโพดหวาน": "ข้าวโพด",
	"ข้าวโพดอ่อน": "ข้าวโพด",
	// Milk
	"นมสด":           "นม",
	"นมจืด":          "นม",
	"นมพาสเจอร์ไรส์": "นม",
	// Drinking water
	"น้ำเปล่า": "น้ำดื่ม",
	"น้ำแร่":   "น้ำดื่ม",
	// Coke
	"โค้ก": "โคก",
	"โค๊ก": "โคก",
	// Pepsi
	"เป๊ปซี่": "เปปซี่",
	"เป๊ปซี":  "เปปซี่",
	"เปปซี":   "เปปซี่",
}

var variantsMu sync.RWMutex

// Fold normalizes text for cache keys and matching: collapses whitespace,
// lowercases ASCII, strips punctuation that carries no meaning, and replaces
// known spelling variants with their standard form.
func Fold(text string) string {
	if text == "" {
		return ""
	}

	normalized := strings.Join(strings.Fields(text), " ")
	normalized = strings.ToLower(normalized)
	normalized = punct.ReplaceAllString(normalized, "")

	variantsMu.RLock()
	for variation, standard := range variants {
		normalized = strings.ReplaceAll(normalized, strings.ToLower(variation), strings.ToLower(standard))
	}
	variantsMu.RUnlock()

	return strings.Join(strings.Fields(normalized), " ")
}

// AddVariant registers a new spelling variant at runtime.
func AddVariant(variation, standard string) {
	variantsMu.Lock()
	variants[variation] = standard
	variantsMu.Unlock()
}
