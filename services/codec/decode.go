package codec

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cinesync/models"
)

// Decoding is deliberately best-effort: corrupt or partially written
// documents yield empty collections rather than errors, so a damaged
// remote file can never take the caller down with it.

// Attribute-name aliases. Documents written by older releases used
// different vocabularies for the same logical fields; all variants must
// resolve identically.
var (
	aliasID       = []string{"schema:identifier", "schema:id", "dc:identifier"}
	aliasTitle    = []string{"schema:name", "schema:title", "dc:title"}
	aliasOverview = []string{"schema:description", "schema:abstract", "schema:overview"}
	aliasPoster   = []string{"schema:image", "schema:poster"}
	aliasBackdrop = []string{"schema:thumbnail", "schema:backdrop"}
	aliasScore    = []string{"schema:ratingValue", "schema:rating", "schema:score"}
	aliasDate     = []string{"schema:datePublished", "schema:releaseDate", "dc:date"}
	aliasAbout    = []string{"schema:about", "schema:itemReviewed"}
	aliasText     = []string{"schema:text", "schema:commentText", "schema:description"}
)

var (
	typeRe = regexp.MustCompile(`\ba\s+(schema:\w+)`)
	attrRe = regexp.MustCompile(`^\s*([\w]+:[\w]+)\s+"((?:[^"\\]|\\.)*)"`)
)

// DecodeList reconstructs a watchlist from a storage document. Invalid or
// empty input yields an empty list.
func DecodeList(text string) []models.ListItem {
	if payload, ok := backupPayload(text); ok {
		var backup listBackup
		if err := json.Unmarshal([]byte(payload), &backup); err == nil && backup.Items != nil {
			return backup.Items
		}
	}

	items := make([]models.ListItem, 0)
	for _, block := range resourceBlocks(text, "schema:Movie") {
		idText, ok := block.first(aliasID)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil {
			continue
		}
		item := models.ListItem{ID: id}
		if v, ok := block.first(aliasTitle); ok {
			item.Title = v
		}
		if v, ok := block.first(aliasOverview); ok {
			item.Overview = v
		}
		if v, ok := block.first(aliasPoster); ok {
			item.PosterPath = v
		}
		if v, ok := block.first(aliasBackdrop); ok {
			item.BackdropPath = v
		}
		if v, ok := block.first(aliasScore); ok {
			if score, err := strconv.ParseFloat(v, 64); err == nil {
				item.VoteAverage = score
			}
		}
		if v, ok := block.first(aliasDate); ok {
			item.ReleaseDate = parseDate(v)
		}
		items = append(items, item)
	}
	return items
}

// DecodeRatings reconstructs a rating map from a storage document.
func DecodeRatings(text string) models.RatingMap {
	if payload, ok := backupPayload(text); ok {
		var backup ratingsBackup
		if err := json.Unmarshal([]byte(payload), &backup); err == nil && backup.Ratings != nil {
			return backup.Ratings
		}
	}

	ratings := models.RatingMap{}
	for _, block := range resourceBlocks(text, "schema:Rating") {
		id, ok := block.first(aliasAbout)
		if !ok {
			continue
		}
		v, ok := block.first(aliasScore)
		if !ok {
			continue
		}
		if value, err := strconv.ParseFloat(v, 64); err == nil {
			ratings[id] = value
		}
	}
	return ratings
}

// DecodeComments reconstructs a comment map from a storage document.
func DecodeComments(text string) models.CommentMap {
	if payload, ok := backupPayload(text); ok {
		var backup commentsBackup
		if err := json.Unmarshal([]byte(payload), &backup); err == nil && backup.Comments != nil {
			return backup.Comments
		}
	}

	comments := models.CommentMap{}
	for _, block := range resourceBlocks(text, "schema:Comment") {
		id, ok := block.first(aliasAbout)
		if !ok {
			continue
		}
		// schema:description doubles as a comment-text alias in legacy
		// documents, so "about" resolution must win first.
		if v, ok := block.first(aliasText); ok {
			comments[id] = v
		}
	}
	return comments
}

// backupPayload extracts the redundant JSON line, if present.
func backupPayload(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, strings.TrimSpace(backupMarker)) {
			payload := strings.TrimSpace(strings.TrimPrefix(line, strings.TrimSpace(backupMarker)))
			if payload != "" {
				return payload, true
			}
		}
	}
	return "", false
}

// resource is one parsed subject block of the structured representation.
type resource struct {
	attrs map[string]string
}

// first returns the value of the first alias present on the resource.
func (r resource) first(aliases []string) (string, bool) {
	for _, name := range aliases {
		if v, ok := r.attrs[name]; ok {
			return v, true
		}
	}
	return "", false
}

// resourceBlocks scans the structured representation and returns, in
// document order, every subject declared with the wanted type.
func resourceBlocks(text, wantType string) []resource {
	var (
		blocks  []resource
		current map[string]string
		keep    bool
	)

	flush := func() {
		if keep && len(current) > 0 {
			blocks = append(blocks, resource{attrs: current})
		}
		current = nil
		keep = false
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "@prefix") {
			continue
		}

		if strings.HasPrefix(trimmed, "<") {
			// New subject line.
			flush()
			current = make(map[string]string)
			if m := typeRe.FindStringSubmatch(trimmed); m != nil {
				keep = m[1] == wantType
			}
		}

		if current != nil {
			if m := attrRe.FindStringSubmatch(trimmed); m != nil {
				name := m[1]
				if _, exists := current[name]; !exists {
					current[name] = unescaper.Replace(m[2])
				}
			}
		}

		if strings.HasSuffix(trimmed, " .") || trimmed == "." {
			flush()
		}
	}
	flush()
	return blocks
}

func parseDate(v string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
