// Package corpus parses directories of rule-definition XML files into flat
// records for the registry.
package corpus

import (
	"encoding/xml"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rulegen-service/internal/entity"
)

type Stats struct {
	Total       int `json:"total"`
	Custom      int `json:"custom"`
	Default     int `json:"default"`
	Overwritten int `json:"overwritten"`
}

type Scanner struct {
	now func() time.Time
}

func NewScanner() *Scanner {
	return &Scanner{now: time.Now}
}

// Scan parses every *.xml file under both directories. When the two paths
// are identical the rules are classified by the numeric threshold instead of
// by directory. Per-file and per-element failures are logged and skipped;
// the scan itself never fails because of one bad file.
func (s *Scanner) Scan(rulesetDir, customDir string) ([]entity.CorpusRule, Stats) {
	scannedAt := s.now().UTC()

	var all []entity.CorpusRule
	if sameDir(rulesetDir, customDir) {
		all = s.scanDirectory(rulesetDir, entity.SourceDefault, scannedAt)
		for i := range all {
			if all[i].RuleID >= entity.CustomIDStart {
				all[i].Source = entity.SourceCustom
			}
		}
	} else {
		all = s.scanDirectory(rulesetDir, entity.SourceDefault, scannedAt)
		all = append(all, s.scanDirectory(customDir, entity.SourceCustom, scannedAt)...)
	}

	var stats Stats
	stats.Total = len(all)
	for _, rule := range all {
		switch rule.Source {
		case entity.SourceCustom:
			stats.Custom++
		default:
			stats.Default++
		}
		if rule.IsOverwritten {
			stats.Overwritten++
		}
	}

	log.Printf("[scan] complete total=%d default=%d custom=%d overwritten=%d",
		stats.Total, stats.Default, stats.Custom, stats.Overwritten)
	return all, stats
}

func (s *Scanner) scanDirectory(dir, source string, scannedAt time.Time) []entity.CorpusRule {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("[scan] dir=%s skipped error=%v", dir, err)
		return nil
	}

	var rules []entity.CorpusRule
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		parsed := s.parseFile(path, source, scannedAt)
		rules = append(rules, parsed...)
	}
	log.Printf("[scan] dir=%s source=%s rules=%d", dir, source, len(rules))
	return rules
}

// ruleElement mirrors one <rule> element. Attrs keeps every attribute so the
// raw textual form can be reconstructed.
type ruleElement struct {
	Attrs       []xml.Attr `xml:",any,attr"`
	Description string     `xml:"description"`
	Group       string     `xml:"group"`
	IfSID       string     `xml:"if_sid"`
	Inner       string     `xml:",innerxml"`
}

func (s *Scanner) parseFile(path, source string, scannedAt time.Time) []entity.CorpusRule {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("[scan] file=%s open error=%v", path, err)
		return nil
	}
	defer f.Close()

	var mtime *time.Time
	if info, err := f.Stat(); err == nil {
		t := info.ModTime().UTC()
		mtime = &t
	}

	// Rule files routinely hold several top-level elements, which is why the
	// token stream is walked instead of unmarshalling a single document.
	dec := xml.NewDecoder(f)
	var rules []entity.CorpusRule
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[scan] file=%s parse error=%v", path, err)
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "rule" {
			continue
		}

		var elem ruleElement
		if err := dec.DecodeElement(&elem, &se); err != nil {
			log.Printf("[scan] file=%s rule element error=%v", path, err)
			continue
		}
		rule, ok := buildRecord(elem, path, source, mtime, scannedAt)
		if !ok {
			log.Printf("[scan] file=%s rule skipped: missing or non-numeric id", path)
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func buildRecord(elem ruleElement, path, source string, mtime *time.Time, scannedAt time.Time) (entity.CorpusRule, bool) {
	var (
		ruleID      int
		haveID      bool
		level       int
		overwritten bool
	)
	for _, a := range elem.Attrs {
		switch a.Name.Local {
		case "id":
			n, err := strconv.Atoi(strings.TrimSpace(a.Value))
			if err != nil {
				return entity.CorpusRule{}, false
			}
			ruleID = n
			haveID = true
		case "level":
			if n, err := strconv.Atoi(strings.TrimSpace(a.Value)); err == nil {
				level = n
			}
		case "overwrite":
			overwritten = strings.EqualFold(strings.TrimSpace(a.Value), "yes")
		}
	}
	if !haveID {
		return entity.CorpusRule{}, false
	}

	rule := entity.CorpusRule{
		RuleID:        ruleID,
		Level:         level,
		Source:        source,
		FilePath:      path,
		FileName:      filepath.Base(path),
		FileMtime:     mtime,
		IsOverwritten: overwritten,
		RuleXML:       renderRuleXML(elem),
		ParentRuleIDs: parseParentIDs(elem.IfSID),
		ScannedAt:     scannedAt,
	}
	if d := strings.TrimSpace(elem.Description); d != "" {
		rule.Description = &d
	}
	if g := strings.TrimSpace(elem.Group); g != "" {
		rule.Groups = &g
	}
	return rule, true
}

// parseParentIDs keeps only purely numeric tokens of a comma-separated
// if_sid value. Signed tokens are not numeric here.
func parseParentIDs(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if !allDigits(part) {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func renderRuleXML(elem ruleElement) string {
	var b strings.Builder
	b.WriteString("<rule")
	for _, a := range elem.Attrs {
		b.WriteString(" ")
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(elem.Inner)
	b.WriteString("</rule>")
	return b.String()
}

func escapeAttr(v string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(v)); err != nil {
		return v
	}
	return b.String()
}

func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
