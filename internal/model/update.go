package model

// TemplateUpdate is a partial update to a template. Nil fields are left
// unchanged. Scheduling is deliberately absent: all scheduling mutation
// goes through the repository's UpdateScheduling method.
type TemplateUpdate struct {
	Name        *string      `json:"name,omitempty"`
	ExpenseData *ExpenseData `json:"expenseData,omitempty"`
	Tags        *[]string    `json:"tags,omitempty"`
	Favorite    *bool        `json:"favorite,omitempty"`
}

// Apply merges the update into a template, returning whether anything
// changed.
func (u TemplateUpdate) Apply(t *Template) bool {
	changed := false
	if u.Name != nil && *u.Name != t.Name {
		t.Name = *u.Name
		changed = true
	}
	if u.ExpenseData != nil {
		t.ExpenseData = *u.ExpenseData
		changed = true
	}
	if u.Tags != nil {
		t.Metadata.Tags = append([]string(nil), (*u.Tags)...)
		changed = true
	}
	if u.Favorite != nil && *u.Favorite != t.Metadata.Favorite {
		t.Metadata.Favorite = *u.Favorite
		changed = true
	}
	return changed
}
