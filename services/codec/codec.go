// Package codec converts in-memory list, rating and comment collections
// to a durable textual document and back. Each document carries two
// encodings of the same data: a Turtle-flavoured structured graph (the
// canonical representation) and a trailing compact JSON line (the
// redundant backup used as the primary decode path).
package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cinesync/models"
)

const (
	header = "@prefix schema: <https://schema.org/> .\n" +
		"@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .\n\n"

	// backupMarker introduces the redundant JSON encoding. The leading
	// '#' keeps the line an ordinary Turtle comment for other consumers.
	backupMarker = "# BACKUPDATA: "
)

var escaper = strings.NewReplacer(
	"\\", "\\\\",
	"\"", "\\\"",
	"\n", "\\n",
	"\r", "\\r",
	"\t", "\\t",
)

// unescaper patterns are ordered so an escaped backslash is consumed
// before it can be mistaken for the start of another escape.
var unescaper = strings.NewReplacer(
	"\\\\", "\\",
	"\\\"", "\"",
	"\\n", "\n",
	"\\r", "\r",
	"\\t", "\t",
)

func quote(s string) string {
	return "\"" + escaper.Replace(s) + "\""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type listBackup struct {
	Items []models.ListItem `json:"items"`
}

type ratingsBackup struct {
	Ratings models.RatingMap `json:"ratings"`
}

type commentsBackup struct {
	Comments models.CommentMap `json:"comments"`
}

// EncodeList renders a watchlist as a storage document. The empty list is
// valid and produces a document declaring an empty member collection.
func EncodeList(items []models.ListItem, name string) string {
	var b strings.Builder
	b.WriteString(header)

	b.WriteString(fmt.Sprintf("<#%s> a schema:ItemList ;\n", name))
	b.WriteString(fmt.Sprintf("    schema:name %s ;\n", quote(name)))
	if len(items) == 0 {
		b.WriteString("    schema:itemListElement () .\n")
	} else {
		refs := make([]string, 0, len(items))
		for _, item := range items {
			refs = append(refs, fmt.Sprintf("<#item-%d>", item.ID))
		}
		b.WriteString(fmt.Sprintf("    schema:itemListElement %s .\n", strings.Join(refs, ", ")))
	}

	for _, item := range items {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("<#item-%d> a schema:Movie ;\n", item.ID))
		b.WriteString(fmt.Sprintf("    schema:identifier \"%d\"^^xsd:integer ;\n", item.ID))
		b.WriteString(fmt.Sprintf("    schema:name %s ;\n", quote(item.Title)))
		b.WriteString(fmt.Sprintf("    schema:description %s ;\n", quote(item.Overview)))
		b.WriteString(fmt.Sprintf("    schema:image %s ;\n", quote(item.PosterPath)))
		b.WriteString(fmt.Sprintf("    schema:thumbnail %s ;\n", quote(item.BackdropPath)))
		b.WriteString(fmt.Sprintf("    schema:ratingValue \"%s\"^^xsd:double ;\n", formatFloat(item.VoteAverage)))
		b.WriteString(fmt.Sprintf("    schema:datePublished \"%s\"^^xsd:dateTime .\n", item.ReleaseDate.UTC().Format(time.RFC3339)))
	}

	writeBackup(&b, listBackup{Items: cloneItems(items)})
	return b.String()
}

// EncodeRatings renders a rating map as a storage document, one Rating
// resource per entry.
func EncodeRatings(ratings models.RatingMap) string {
	var b strings.Builder
	b.WriteString(header)

	ids := make([]string, 0, len(ratings))
	for id := range ratings {
		ids = append(ids, id)
	}
	sortIDs(ids)

	for _, id := range ids {
		b.WriteString(fmt.Sprintf("<#rating-%s> a schema:Rating ;\n", id))
		b.WriteString(fmt.Sprintf("    schema:about %s ;\n", quote(id)))
		b.WriteString(fmt.Sprintf("    schema:ratingValue \"%s\"^^xsd:double .\n\n", formatFloat(ratings[id])))
	}

	if ratings == nil {
		ratings = models.RatingMap{}
	}
	writeBackup(&b, ratingsBackup{Ratings: ratings})
	return b.String()
}

// EncodeComments renders a comment map as a storage document, one Comment
// resource per entry.
func EncodeComments(comments models.CommentMap) string {
	var b strings.Builder
	b.WriteString(header)

	ids := make([]string, 0, len(comments))
	for id := range comments {
		ids = append(ids, id)
	}
	sortIDs(ids)

	for _, id := range ids {
		b.WriteString(fmt.Sprintf("<#comment-%s> a schema:Comment ;\n", id))
		b.WriteString(fmt.Sprintf("    schema:about %s ;\n", quote(id)))
		b.WriteString(fmt.Sprintf("    schema:text %s .\n\n", quote(comments[id])))
	}

	if comments == nil {
		comments = models.CommentMap{}
	}
	writeBackup(&b, commentsBackup{Comments: comments})
	return b.String()
}

func writeBackup(b *strings.Builder, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		// Only unmarshalable values (NaN scores) can land here; the
		// structured part still carries the data.
		return
	}
	b.WriteString("\n")
	b.WriteString(backupMarker)
	b.Write(data)
	b.WriteString("\n")
}

// cloneItems guarantees the backup marshals as [] rather than null for
// empty lists.
func cloneItems(items []models.ListItem) []models.ListItem {
	out := make([]models.ListItem, 0, len(items))
	return append(out, items...)
}

// sortIDs orders item ids numerically where possible so encoded
// documents are deterministic.
func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
}
