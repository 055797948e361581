package audit

import (
	"net/url"
	"time"
)

// TimelineFilters narrows the activity log. Zero values disable a filter.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit_logs entry joined with its actor.
type TimelineRow struct {
	ID       int64
	At       time.Time
	ActorID  int64
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// Link returns the page of the audited record, if it still has one.
func (r TimelineRow) Link() string {
	switch r.Entity {
	case "vehicle":
		return "/vehicles/" + r.EntityID
	case "article":
		return "/articles#article-" + r.EntityID
	}
	return ""
}

// PagingInfo carries simple previous/next paging.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result wraps one page of the timeline.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// ViewModel is the data handed to pages/audit.html.
type ViewModel struct {
	Filters TimelineFilters
	Rows    []TimelineRow
	Paging  PagingInfo
	Actions []string
	Query   url.Values
}
