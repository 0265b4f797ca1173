package audit

import (
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"record-gateway/internal/common/pagination"
)

// Filter selects a slice of the audit trail. Zero values mean "no
// constraint"; From/To are inclusive.
type Filter struct {
	Type       EventType `json:"type,omitempty"`
	From       time.Time `json:"from,omitempty"`
	To         time.Time `json:"to,omitempty"`
	PathGlob   string    `json:"path,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

func (f Filter) page() pagination.Params {
	return pagination.Clamp(f.Limit, f.Offset)
}

// document builds the MongoDB filter document
func (f Filter) document() bson.M {
	doc := bson.M{}

	if f.Type != "" {
		doc["type"] = string(f.Type)
	}

	ts := bson.M{}
	if !f.From.IsZero() {
		ts["$gte"] = f.From
	}
	if !f.To.IsZero() {
		ts["$lte"] = f.To
	}
	if len(ts) > 0 {
		doc["timestamp"] = ts
	}

	if f.PathGlob != "" {
		doc["path"] = primitive.Regex{Pattern: GlobToRegex(f.PathGlob)}
	}

	if f.StatusCode != 0 {
		doc["status_code"] = f.StatusCode
	}

	return doc
}

// GlobToRegex converts a path glob supporting only the * wildcard into an
// anchored regular expression. Every other regex metacharacter in the glob is
// escaped, so user input cannot smuggle in arbitrary patterns.
func GlobToRegex(glob string) string {
	quoted := regexp.QuoteMeta(glob)
	return "^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$"
}
