package model

// User is a Stack Overflow user retained by the reputation filter.
// TagPosts maps tag name to the number of posts the user authored under
// that tag, restricted to the top-N tag universe. Immutable once loaded.
type User struct {
	ID         int            `json:"id"`
	Reputation int            `json:"reputation"`
	TagPosts   map[string]int `json:"tag_posts"`
}

// TotalActivity returns the sum of per-tag post counts.
func (u *User) TotalActivity() int {
	total := 0
	for _, n := range u.TagPosts {
		total += n
	}
	return total
}

// Tag is reference data used only to determine the top-N tag universe.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
