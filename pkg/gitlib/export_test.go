package gitlib

import "time"

// CommitsVisited reports how many commits AuthorsBetween inspects for the window.
func (r *Repository) CommitsVisited(since, before time.Time) (int, error) {
	_, visited, err := r.authorsBetween(since, before)

	return visited, err
}
