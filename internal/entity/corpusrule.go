package entity

import "time"

// Rule source classification. With distinct scan directories the source is
// the directory a file came from; when both directories are the same path
// the numeric threshold below decides instead.
const (
	SourceDefault = "default"
	SourceCustom  = "custom"
)

// Numeric ID space layout: vendor rules below CustomIDStart, operator rules
// in [CustomIDStart, CustomIDEnd).
const (
	CustomIDStart = 100000
	CustomIDEnd   = 120000
)

// CorpusRule is one parsed <rule> element from a scanned ruleset file. The
// whole set is replaced atomically on each rescan; rows are never updated
// individually.
type CorpusRule struct {
	ID            int64      `json:"id"`
	RuleID        int        `json:"rule_id"`
	Level         int        `json:"level"`
	Description   *string    `json:"description,omitempty"`
	Groups        *string    `json:"groups,omitempty"`
	Source        string     `json:"source"`
	FilePath      string     `json:"file_path"`
	FileName      string     `json:"file_name"`
	FileMtime     *time.Time `json:"file_mtime,omitempty"`
	IsOverwritten bool       `json:"is_overwritten"`
	RuleXML       string     `json:"rule_xml"`
	ParentRuleIDs []int      `json:"parent_rule_ids,omitempty"`
	ScannedAt     time.Time  `json:"scanned_at"`
}
