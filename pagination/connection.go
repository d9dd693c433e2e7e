// Package pagination turns over-fetched pages into Relay style connections.
package pagination

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/yashrajoria/graphql-gateway/errors"
)

const cursorPrefix = "cursor:"

// maxCursorPosition bounds decoded positions so offset arithmetic cannot
// overflow.
const maxCursorPosition = math.MaxInt32

// Settings are the page size limits, fixed at startup.
type Settings struct {
	MaxPageSize     int
	DefaultPageSize int
	// LegacyPreviousPage reports HasPreviousPage as always true.
	LegacyPreviousPage bool
}

// Request is what a client asked for on one list field.
type Request struct {
	First *int
	After *string
	Settings
}

// Edge pairs a node with its cursor.
type Edge[T any] struct {
	Cursor string
	Node   T
}

type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     *string
	EndCursor       *string
	TotalCount      *int
}

// Connection is one page of a list field.
type Connection[T any, P any] struct {
	Edges    []Edge[T]
	PageInfo P
}

// Nodes returns the nodes of every edge in order.
func (c Connection[T, P]) Nodes() []T {
	nodes := make([]T, len(c.Edges))
	for i, e := range c.Edges {
		nodes[i] = e.Node
	}
	return nodes
}

// WithTotalCount sets the optional total on a connection.
func WithTotalCount[T any](c Connection[T, PageInfo], total int) Connection[T, PageInfo] {
	c.PageInfo.TotalCount = &total
	return c
}

// Limit is the page size after clamping First to the configured bounds.
func (r Request) Limit() int {
	if r.First == nil {
		return min(r.DefaultPageSize, r.MaxPageSize)
	}
	return max(0, min(*r.First, r.MaxPageSize))
}

// Offset decodes After into the offset of the first item to return.
func (r Request) Offset() (int, error) {
	if r.After == nil {
		return 0, nil
	}
	pos, err := DecodeCursor(*r.After)
	if err != nil {
		return 0, err
	}
	return pos + 1, nil
}

// EncodeCursor returns the cursor of the item at absolute position pos.
func EncodeCursor(pos int) string {
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(pos)))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, apperrors.Parse("invalid cursor", err)
	}
	pos, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) || pos < 0 || pos >= maxCursorPosition {
		return 0, apperrors.Parse("invalid cursor", err)
	}
	return pos, nil
}

// Paginate fetches one page by offset. fetch is asked for one item more than
// the page size so the presence of a next page is known without a count.
func Paginate[T any](req Request, fetch func(offset, limit int) ([]T, error)) (Connection[T, PageInfo], error) {
	limit := req.Limit()
	offset, err := req.Offset()
	if err != nil {
		return Connection[T, PageInfo]{}, err
	}

	items, err := fetch(offset, limit+1)
	if err != nil {
		return Connection[T, PageInfo]{}, err
	}

	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}

	edges := make([]Edge[T], len(items))
	for i, item := range items {
		edges[i] = Edge[T]{Cursor: EncodeCursor(offset + i), Node: item}
	}

	return Connection[T, PageInfo]{
		Edges:    edges,
		PageInfo: pageInfo(edges, hasNext, offset > 0 || req.LegacyPreviousPage),
	}, nil
}

// PaginateByKey fetches one page for lists whose cursor is the node's own
// key. After is handed to fetch unchanged.
func PaginateByKey[T any](req Request, fetch func(after *string, limit int) ([]T, error), cursorOf func(T) string) (Connection[T, PageInfo], error) {
	limit := req.Limit()

	items, err := fetch(req.After, limit+1)
	if err != nil {
		return Connection[T, PageInfo]{}, err
	}

	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}

	edges := make([]Edge[T], len(items))
	for i, item := range items {
		edges[i] = Edge[T]{Cursor: cursorOf(item), Node: item}
	}

	return Connection[T, PageInfo]{
		Edges:    edges,
		PageInfo: pageInfo(edges, hasNext, req.After != nil || req.LegacyPreviousPage),
	}, nil
}

func pageInfo[T any](edges []Edge[T], hasNext, hasPrevious bool) PageInfo {
	info := PageInfo{HasNextPage: hasNext, HasPreviousPage: hasPrevious}
	if len(edges) > 0 {
		start, end := edges[0].Cursor, edges[len(edges)-1].Cursor
		info.StartCursor = &start
		info.EndCursor = &end
	}
	return info
}
