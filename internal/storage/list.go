package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/xtendabl/expensabl/internal/model"
)

// DefaultPageSize is used when ListOptions.Limit is not set.
const DefaultPageSize = 20

// List serves paginated, sorted, filtered template listings from the
// metadata index. Projections come straight from the index; opts.Hydrate
// additionally loads the full record for every item on the returned page
// (one read per id).
func (r *TemplateRepository) List(ctx context.Context, opts model.ListOptions) (*model.ListResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	idx, err := readValue[metadataIndex](ctx, r, KeyMetadataIndex)
	if err != nil {
		return nil, err
	}

	items := make([]model.ListItem, 0)
	if idx != nil {
		for id, summary := range *idx {
			if !matchesFilters(summary, opts) {
				continue
			}
			items = append(items, model.ListItem{ID: id, Summary: summary})
		}
	}

	sortItems(items, opts.SortBy, opts.SortOrder)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}

	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pageItems := items[start:end]

	if opts.Hydrate {
		for i := range pageItems {
			t, err := r.Get(ctx, pageItems[i].ID)
			if err != nil {
				return nil, err
			}
			pageItems[i].Template = t
		}
	}

	return &model.ListResult{
		Items:    pageItems,
		Total:    total,
		Page:     page,
		PageSize: limit,
		HasMore:  end < total,
	}, nil
}

func matchesFilters(s model.TemplateSummary, opts model.ListOptions) bool {
	if opts.HasScheduling != nil && s.HasScheduling != *opts.HasScheduling {
		return false
	}
	if opts.Favorite != nil && s.Favorite != *opts.Favorite {
		return false
	}
	if opts.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(opts.Search)) {
		return false
	}
	for _, want := range opts.Tags {
		if !containsTag(s.Tags, want) {
			return false
		}
	}
	return true
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}

func sortItems(items []model.ListItem, by model.SortField, order model.SortOrder) {
	if by == "" {
		by = model.SortByName
	}
	desc := order == model.SortDesc

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var less bool
		switch by {
		case model.SortByCreatedAt:
			less = a.Summary.CreatedAt < b.Summary.CreatedAt
		case model.SortByUpdatedAt:
			less = a.Summary.UpdatedAt < b.Summary.UpdatedAt
		case model.SortByLastUsed:
			less = a.Summary.LastUsed < b.Summary.LastUsed
		case model.SortByUseCount:
			less = a.Summary.UseCount < b.Summary.UseCount
		default:
			an, bn := strings.ToLower(a.Summary.Name), strings.ToLower(b.Summary.Name)
			if an == bn {
				less = a.ID < b.ID
			} else {
				less = an < bn
			}
		}
		if desc {
			return !less && !equalByField(a, b, by)
		}
		return less
	})
}

func equalByField(a, b model.ListItem, by model.SortField) bool {
	switch by {
	case model.SortByCreatedAt:
		return a.Summary.CreatedAt == b.Summary.CreatedAt
	case model.SortByUpdatedAt:
		return a.Summary.UpdatedAt == b.Summary.UpdatedAt
	case model.SortByLastUsed:
		return a.Summary.LastUsed == b.Summary.LastUsed
	case model.SortByUseCount:
		return a.Summary.UseCount == b.Summary.UseCount
	default:
		return strings.EqualFold(a.Summary.Name, b.Summary.Name)
	}
}
