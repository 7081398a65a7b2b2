package repository

import (
	"fmt"
	"strings"

	"github.com/ad-tracker/video-catalog-go/internal/db/models"
)

// Sort directions accepted by VideoFilters.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// sortColumns is the allow-list of sortable columns. Anything else falls
// back to id so a bad query string never turns into an error.
var sortColumns = map[string]string{
	"id":           "id",
	"title":        "title",
	"channel_name": "channel_name",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
}

const videoColumns = `id, url, title, channel_name, tags, memo, transcript, status, last_error, created_at, updated_at`

// VideoFilters contains search and sort options for listing videos.
type VideoFilters struct {
	TitleQuery string
	// TagsQuery is comma-joined; a video must carry every listed tag.
	TagsQuery string
	SortBy    string
	SortOrder string
}

// NormalizedSort returns the column and direction that will actually be used.
func (f VideoFilters) NormalizedSort() (column, direction string) {
	column, ok := sortColumns[strings.ToLower(strings.TrimSpace(f.SortBy))]
	if !ok {
		column = "id"
	}
	direction = "ASC"
	if strings.EqualFold(strings.TrimSpace(f.SortOrder), SortDesc) {
		direction = "DESC"
	}
	return column, direction
}

// BuildSearchQuery turns filters into a parameterized SELECT over videos.
// It has no side effects and is safe to call from tests without a database.
func BuildSearchQuery(f VideoFilters) (string, []interface{}) {
	args := []interface{}{}
	argPos := 1
	var conditions []string

	if title := strings.TrimSpace(f.TitleQuery); title != "" {
		conditions = append(conditions, fmt.Sprintf(`title ILIKE $%d ESCAPE '\'`, argPos))
		args = append(args, "%"+escapeLike(title)+"%")
		argPos++
	}

	if tags := models.ParseTags(f.TagsQuery); len(tags) > 0 {
		conditions = append(conditions, fmt.Sprintf(
			"ARRAY(SELECT btrim(t) FROM unnest(string_to_array(COALESCE(tags, ''), ',')) AS t) @> $%d::text[]",
			argPos,
		))
		args = append(args, tags)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	column, direction := f.NormalizedSort()
	orderClause := fmt.Sprintf("ORDER BY %s %s", column, direction)
	if column != "id" {
		// tie-break so equal titles keep a stable order
		orderClause += ", id ASC"
	}

	query := fmt.Sprintf("SELECT %s FROM videos %s %s", videoColumns, whereClause, orderClause)
	return strings.Join(strings.Fields(query), " "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
