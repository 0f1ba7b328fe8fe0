package router

import (
	"strings"

	"vidflow/internal/config"
)

// Mismatch reasons reported in Decision.Reason.
const (
	ReasonMatched    = "matched"
	ReasonDetailType = "detail_type"
	ReasonSource     = "source"
	ReasonBucket     = "bucket"
	ReasonEmptyKey   = "empty_key"
	ReasonSuffix     = "suffix"
)

// Rule is the upload event filter.
type Rule struct {
	Source     string
	DetailType string
	Bucket     string
	Suffixes   []string
}

// RuleFromConfig builds the rule from the [trigger] section.
func RuleFromConfig(cfg config.Trigger) Rule {
	suffixes := make([]string, len(cfg.Suffixes))
	copy(suffixes, cfg.Suffixes)
	return Rule{
		Source:     cfg.Source,
		DetailType: cfg.DetailType,
		Bucket:     cfg.Bucket,
		Suffixes:   suffixes,
	}
}

// Match reports whether ev should start a pipeline and, if not, which
// condition failed first.
func (r Rule) Match(ev Event) (bool, string) {
	detailType := r.DetailType
	if detailType == "" {
		detailType = DetailTypeObjectCreated
	}
	if ev.DetailType != detailType {
		return false, ReasonDetailType
	}
	if ev.Source != "" && r.Source != "" && ev.Source != r.Source {
		return false, ReasonSource
	}
	if ev.Bucket != r.Bucket {
		return false, ReasonBucket
	}
	if ev.Key == "" {
		return false, ReasonEmptyKey
	}
	for _, suffix := range r.Suffixes {
		if suffix != "" && strings.HasSuffix(ev.Key, suffix) {
			return true, ReasonMatched
		}
	}
	return false, ReasonSuffix
}
