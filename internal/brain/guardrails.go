package brain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"basegraph.app/counsel/internal/model"
)

// DefaultDisclaimer is the sentinel every released response ends with.
const DefaultDisclaimer = "Disclaimer: This response provides general legal information and is not legal advice. Consult a licensed attorney about your specific situation."

const (
	hedgedOutcomeEN = "Based on the provided context, the outcome of the case cannot be predicted with certainty, and it is recommended to consult a licensed attorney."
	hedgedOutcomeAR = "بناءً على المعطيات المقدمة، لا يمكن التنبؤ بنتيجة القضية بشكل قاطع، ويُنصح باستشارة محامٍ مرخص."

	noTextFoundEN = "No specific legal text was found regarding %s."
	noTextFoundAR = "لم يتم العثور على نص نظامي محدد بشأن %s."

	defaultTopicEN = "this matter"
	defaultTopicAR = "هذا الموضوع"
)

var outcomePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(you|we|your client|the client|our client)\s+(will|shall|are going to)\s+(definitely\s+|certainly\s+|surely\s+|undoubtedly\s+|absolutely\s+)?(win|prevail|succeed)\b`),
	regexp.MustCompile(`(?i)\bguarantee[sd]?\s+(that\s+)?(you\s+|your\s+|the\s+|a\s+|an\s+)?(win|victory|success|favou?rable|outcome|result|judge?ment|case)\b`),
	regexp.MustCompile(`(?i)\b(win|victory|success|outcome|result)\b[^.!?\n]{0,40}\bguaranteed\b`),
	regexp.MustCompile(`(?i)\bguaranteed\s+to\s+(win|prevail|succeed)\b`),
	regexp.MustCompile(`(?i)\b(win|winning|victory|success|outcome|result)\b[^.!?\n]{0,40}\b(is|are|seems|looks)\s+(certain|assured|inevitable|a\s+certainty|a\s+sure\s+thing)\b`),
	regexp.MustCompile(`(?i)\b(will|shall|is\s+going\s+to|are\s+going\s+to)\s+(certainly\s+|definitely\s+|surely\s+)?(rule|decide|find|side)\s+(in\s+)?(your|our|the\s+client's|your\s+client's)\s+favou?r\b`),
	regexp.MustCompile(`(?i)\b100\s*%\s*(certain|sure|guaranteed|chance|success|win)`),
	regexp.MustCompile(`(?i)\b(win|won|prevail|succeed|success|chance)\b[^.!?\n]{0,40}\b100\s*%`),
	regexp.MustCompile(`(?i)\b(cannot|can't|will not|won't)\s+lose\b`),
	regexp.MustCompile(`(?i)\bno\s+(chance|way|risk)\s+(of|that)\s+(you\s+)?los(e|ing)\b`),
	regexp.MustCompile(`(?i)\b(certain|assured|sure)\s+(to\s+)?(win|prevail|succeed)\b`),
	regexp.MustCompile(`(?i)\bdefinitely\s+(win|prevail|succeed)\b`),
	regexp.MustCompile(`(ستكسب|ستربح|ستفوز|سنكسب|سنربح|سنفوز|ستنتصر)`),
	regexp.MustCompile(`(الفوز|الربح|كسب|النجاح|النتيجة|الحكم)[^.!؟\n]{0,30}مضمون`),
	regexp.MustCompile(`بنسب[ةه]\s*(١٠٠|100)\s*[%٪]`),
	regexp.MustCompile(`(حتماً|حتما|قطعاً|قطعا|بالتأكيد)[^.!؟\n]{0,20}لصالحك`),
	regexp.MustCompile(`(لن تخسر|لا يمكن أن تخسر)`),
	regexp.MustCompile(`محسوم[ةه]?\s*(لصالح|لك)`),
}

var (
	citationEN   = regexp.MustCompile(`(?i)\b(article|art\.|section|sec\.|clause|paragraph|para\.)\s*(?:no\.?\s*)?(\d+)`)
	citationAR   = regexp.MustCompile(`(المادة|مادة|البند|بند|الفقرة|فقرة)\s*(?:رقم\s*)?\(?\s*([0-9٠-٩]+)`)
	lawReference = regexp.MustCompile(`(?i)\b(laws?|regulations?|code|act|decree|statute|legislation)\b|نظام|قانون|لائحة|مرسوم`)
	precedentEN  = regexp.MustCompile(`\b([A-Z][A-Za-z]+)\s+v(?:s)?\.?\s+([A-Z][A-Za-z]+)\b`)

	vagueClaimPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\baccording to (the )?(law|regulations?|legislation|statutes?)\b`),
		regexp.MustCompile(`(?i)\bthe\s+([a-z]+\s+){0,3}(laws?|regulations?|code|act|statutes?|legislation)\s+(states|provides|says|stipulates|requires|mandates|prohibits|permits|allows|entitles|obliges)\b`),
		regexp.MustCompile(`(?i)\b(under|by)\s+([a-z]+\s+){0,3}laws?\b`),
		regexp.MustCompile(`(?i)\b(legal|statutory) (texts?|provisions?) (state|states|provide|provides)\b`),
		regexp.MustCompile(`(وفقاً|وفقا|طبقاً|طبقا|حسب)\s*(للنظام|للقانون|لنظام|لقانون)`),
		regexp.MustCompile(`(ينص|نص|تنص)\s*(النظام|القانون|الأنظمة)`),
	}

	citationKinds = map[string]string{
		"article":   "article",
		"art.":      "article",
		"section":   "section",
		"sec.":      "section",
		"clause":    "clause",
		"paragraph": "paragraph",
		"para.":     "paragraph",
		"المادة":    "article",
		"مادة":      "article",
		"البند":     "clause",
		"بند":       "clause",
		"الفقرة":    "paragraph",
		"فقرة":      "paragraph",
	}

	arabicDigits = strings.NewReplacer("٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4", "٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9")

	abbreviations = map[string]bool{
		"art": true, "sec": true, "para": true, "no": true, "vs": true, "v": true,
		"e.g": true, "i.e": true, "mr": true, "mrs": true, "ms": true, "dr": true, "st": true,
	}
)

// GuardrailInput is what the deterministic review rules need besides the text.
type GuardrailInput struct {
	ResearchContext string
	Topic           string
	Intent          model.Intent
}

// GuardrailResult records which rules rewrote the text.
type GuardrailResult struct {
	Text                 string
	OutcomeRewritten     bool
	HallucinationFlagged bool
}

// ApplyGuardrails runs the outcome-guarantee rule and then the citation rule. Each
// rewrites whole sentences; text that trips neither is returned unchanged.
func ApplyGuardrails(text string, in GuardrailInput) GuardrailResult {
	supported := citationKeys(in.ResearchContext)
	contextEmpty := strings.TrimSpace(in.ResearchContext) == ""
	contract := in.Intent == model.IntentContractDraft

	segments := splitSentences(text)
	result := GuardrailResult{}
	out := make([]segment, 0, len(segments))

	for _, seg := range segments {
		body := strings.TrimSpace(seg.text)
		if body == "" {
			out = append(out, seg)
			continue
		}

		switch {
		case matchesAny(outcomePatterns, body):
			seg.text = preservePrefix(seg.text, hedgedOutcome(body))
			result.OutcomeRewritten = true
		case unsupportedCitation(body, supported, contract) ||
			(contextEmpty && !contract && matchesAny(vagueClaimPatterns, body)):
			seg.text = preservePrefix(seg.text, noTextFound(body, in.Topic))
			result.HallucinationFlagged = true
		}

		// Collapse runs of identical rewrites into one sentence.
		if n := len(out); n > 0 && isRewrite(seg.text) &&
			strings.TrimSpace(out[n-1].text) == strings.TrimSpace(seg.text) {
			out[n-1].trail = seg.trail
			continue
		}
		out = append(out, seg)
	}

	result.Text = joinSegments(out)
	return result
}

// EnsureDisclaimer removes every copy of disclaimer from text and appends exactly one
// at the end. Reports whether the text did not already end with it.
func EnsureDisclaimer(text, disclaimer string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	appended := !strings.HasSuffix(trimmed, disclaimer)

	body := strings.TrimSpace(strings.ReplaceAll(trimmed, disclaimer, ""))
	if body == "" {
		return disclaimer, appended
	}
	return body + "\n\n" + disclaimer, appended
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func hedgedOutcome(sentence string) string {
	if containsArabic(sentence) {
		return hedgedOutcomeAR
	}
	return hedgedOutcomeEN
}

func noTextFound(sentence, topic string) string {
	topic = strings.TrimSpace(topic)
	if containsArabic(sentence) {
		if topic == "" {
			topic = defaultTopicAR
		}
		return fmt.Sprintf(noTextFoundAR, topic)
	}
	if topic == "" {
		topic = defaultTopicEN
	}
	return fmt.Sprintf(noTextFoundEN, topic)
}

func isRewrite(s string) bool {
	s = strings.TrimSpace(s)
	return s == hedgedOutcomeEN || s == hedgedOutcomeAR ||
		strings.HasPrefix(s, "No specific legal text was found regarding") ||
		strings.HasPrefix(s, "لم يتم العثور على نص نظامي محدد")
}

// citationKeys extracts normalized citation keys ("article:77", "case:smith v jones").
func citationKeys(text string) map[string]bool {
	keys := make(map[string]bool)
	for _, k := range extractCitations(text) {
		keys[k] = true
	}
	return keys
}

func extractCitations(text string) []string {
	var keys []string
	for _, m := range citationEN.FindAllStringSubmatch(text, -1) {
		keys = append(keys, citationKinds[strings.ToLower(m[1])]+":"+m[2])
	}
	for _, m := range citationAR.FindAllStringSubmatch(text, -1) {
		keys = append(keys, citationKinds[m[1]]+":"+arabicDigits.Replace(m[2]))
	}
	for _, m := range precedentEN.FindAllStringSubmatch(text, -1) {
		keys = append(keys, "case:"+strings.ToLower(m[1])+" v "+strings.ToLower(m[2]))
	}
	return keys
}

// unsupportedCitation reports a citation in sentence that the research context does not
// contain. Contracts number their own clauses, so in a contract only citations next to a
// named law count.
func unsupportedCitation(sentence string, supported map[string]bool, contract bool) bool {
	if contract && !lawReference.MatchString(sentence) {
		return false
	}
	for _, k := range extractCitations(sentence) {
		if !supported[k] {
			return true
		}
	}
	return false
}

func containsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}

// segment is one sentence plus the whitespace that followed it, so joining segments
// reproduces the original text exactly.
type segment struct {
	text  string
	trail string
}

func splitSentences(s string) []segment {
	runes := []rune(s)
	var segs []segment
	start := 0

	for i := 0; i < len(runes); {
		if !endsSentence(runes, i) {
			i++
			continue
		}

		end := i + 1
		if runes[i] == '\n' {
			end = i
		} else {
			for end < len(runes) && isSentencePunct(runes[end]) {
				end++
			}
		}

		trailEnd := end
		for trailEnd < len(runes) && unicode.IsSpace(runes[trailEnd]) {
			trailEnd++
		}

		segs = append(segs, segment{text: string(runes[start:end]), trail: string(runes[end:trailEnd])})
		start = trailEnd
		i = trailEnd
	}

	if start < len(runes) {
		segs = append(segs, segment{text: string(runes[start:])})
	}
	return segs
}

func joinSegments(segs []segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.text)
		sb.WriteString(s.trail)
	}
	return sb.String()
}

func isSentencePunct(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '؟'
}

func endsSentence(runes []rune, i int) bool {
	switch runes[i] {
	case '\n', '!', '?', '؟':
		return true
	case '.':
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) && !isSentencePunct(runes[i+1]) {
			return false
		}
		if isListMarker(runes, i) {
			return false
		}
		return !abbreviations[strings.ToLower(wordBefore(runes, i))]
	default:
		return false
	}
}

// wordBefore returns the word ending at position i, keeping inner dots ("e.g").
func wordBefore(runes []rune, i int) string {
	j := i
	for j > 0 && (unicode.IsLetter(runes[j-1]) || runes[j-1] == '.') {
		j--
	}
	return string(runes[j:i])
}

// isListMarker reports whether the dot at i closes a "12." list number at line start.
func isListMarker(runes []rune, i int) bool {
	j := i
	for j > 0 && unicode.IsDigit(runes[j-1]) {
		j--
	}
	if j == i {
		return false
	}
	for j > 0 && (runes[j-1] == ' ' || runes[j-1] == '\t') {
		j--
	}
	return j == 0 || runes[j-1] == '\n'
}

var listPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])?\s*`)

// preservePrefix keeps the original sentence's indentation and list marker.
func preservePrefix(original, replacement string) string {
	return listPrefix.FindString(original) + replacement
}
