// Package dump loads the Stack Exchange data dump tables and applies the
// study filters: top-N tags by global usage, users at or above the
// reputation floor, and answers authored by retained users.
package dump

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/empirical-se/expertise-cli/internal/config"
	"github.com/empirical-se/expertise-cli/internal/fetcher"
	"github.com/empirical-se/expertise-cli/internal/model"
)

// Post type ids as defined by the dump schema.
const (
	postTypeQuestion = 1
	postTypeAnswer   = 2
)

// reTagList extracts tag names from the Tags attribute: <python><java>.
var reTagList = regexp.MustCompile(`<([^>]+)>`)

// Stats counts what the loader read and what it had to skip.
type Stats struct {
	TagsRead  int `json:"tags_read"`
	UsersRead int `json:"users_read"`
	PostsRead int `json:"posts_read"`
	Questions int `json:"questions"`

	// Malformed rows per table, skipped and counted rather than fatal.
	Malformed map[string]int `json:"malformed"`
}

// TotalMalformed sums malformed-row counts across tables.
func (s Stats) TotalMalformed() int {
	total := 0
	for _, n := range s.Malformed {
		total += n
	}
	return total
}

// Dataset is the filtered in-memory view of the dump that the rest of the
// pipeline consumes. Collections are not mutated after Load returns.
type Dataset struct {
	TopTags []model.Tag
	Users   map[int]*model.User
	Answers []model.Answer
	Stats   Stats
}

// tagUniverse returns the retained tag set for membership checks.
func (d *Dataset) tagUniverse() map[string]struct{} {
	set := make(map[string]struct{}, len(d.TopTags))
	for _, t := range d.TopTags {
		set[t.Name] = struct{}{}
	}
	return set
}

// Raw row types mirror the dump attributes as strings; numeric conversion
// happens in the loader so a bad attribute skips one row instead of
// aborting the stream.

type rawTag struct {
	TagName string `xml:"TagName,attr"`
	Count   string `xml:"Count,attr"`
}

type rawUser struct {
	ID         string `xml:"Id,attr"`
	Reputation string `xml:"Reputation,attr"`
}

type rawPost struct {
	ID               string `xml:"Id,attr"`
	PostTypeID       string `xml:"PostTypeId,attr"`
	ParentID         string `xml:"ParentId,attr"`
	AcceptedAnswerID string `xml:"AcceptedAnswerId,attr"`
	OwnerUserID      string `xml:"OwnerUserId,attr"`
	Score            string `xml:"Score,attr"`
	Tags             string `xml:"Tags,attr"`
	Body             string `xml:"Body,attr"`
}

// Load reads the three dump tables and produces the filtered dataset.
// Tags and Users are independent and stream concurrently; Posts needs
// both and runs after. A missing or structurally broken table is fatal.
func Load(ctx context.Context, dumpCfg config.DumpConfig, filterCfg config.FilterConfig) (*Dataset, error) {
	log := zap.L().With(zap.String("stage", "load"))

	ds := &Dataset{
		Users: make(map[int]*model.User),
		Stats: Stats{Malformed: make(map[string]int)},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ds.loadTags(gctx, filepath.Join(dumpCfg.Dir, dumpCfg.TagsFile), filterCfg.TopNTags)
	})
	g.Go(func() error {
		return ds.loadUsers(gctx, filepath.Join(dumpCfg.Dir, dumpCfg.UsersFile), filterCfg.MinReputation)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("tags and users loaded",
		zap.Int("top_tags", len(ds.TopTags)),
		zap.Int("users", len(ds.Users)),
		zap.Int("tags_read", ds.Stats.TagsRead),
		zap.Int("users_read", ds.Stats.UsersRead),
	)

	if err := ds.loadPosts(ctx, filepath.Join(dumpCfg.Dir, dumpCfg.PostsFile)); err != nil {
		return nil, err
	}

	log.Info("posts loaded",
		zap.Int("posts_read", ds.Stats.PostsRead),
		zap.Int("answers", len(ds.Answers)),
		zap.Int("malformed", ds.Stats.TotalMalformed()),
	)

	return ds, nil
}

func (d *Dataset) loadTags(ctx context.Context, path string, topN int) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "dump: open tags table %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamRows[rawTag](ctx, f)

	var tags []model.Tag
	for row := range rowCh {
		d.Stats.TagsRead++
		count, ok := parseInt(row.Count)
		if row.TagName == "" || !ok {
			d.Stats.Malformed["tags"]++
			continue
		}
		tags = append(tags, model.Tag{Name: row.TagName, Count: count})
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "dump: stream tags")
	}

	// Usage desc, name asc on ties, so the retained universe is stable
	// across runs.
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Name < tags[j].Name
	})
	if len(tags) > topN {
		tags = tags[:topN]
	}
	d.TopTags = tags

	return nil
}

func (d *Dataset) loadUsers(ctx context.Context, path string, minReputation int) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "dump: open users table %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamRows[rawUser](ctx, f)

	for row := range rowCh {
		d.Stats.UsersRead++
		id, okID := parseInt(row.ID)
		rep, okRep := parseInt(row.Reputation)
		if !okID || !okRep {
			d.Stats.Malformed["users"]++
			continue
		}
		if rep < minReputation {
			continue
		}
		d.Users[id] = &model.User{
			ID:         id,
			Reputation: rep,
			TagPosts:   make(map[string]int),
		}
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "dump: stream users")
	}

	return nil
}

// loadPosts makes a single pass over Posts.xml, accumulating per-user tag
// activity from questions and collecting answers by retained users.
// Acceptance lives on the question row (AcceptedAnswerId), so answers are
// marked accepted after the pass.
func (d *Dataset) loadPosts(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "dump: open posts table %s", path)
	}
	defer f.Close() //nolint:errcheck

	universe := d.tagUniverse()
	accepted := make(map[int]struct{})

	rowCh, errCh := fetcher.StreamRows[rawPost](ctx, f)

	for row := range rowCh {
		d.Stats.PostsRead++

		id, okID := parseInt(row.ID)
		postType, okType := parseInt(row.PostTypeID)
		if !okID || !okType {
			d.Stats.Malformed["posts"]++
			continue
		}

		score := 0
		if row.Score != "" {
			var ok bool
			if score, ok = parseInt(row.Score); !ok {
				d.Stats.Malformed["posts"]++
				continue
			}
		}

		// Posts by deleted users carry no OwnerUserId; they contribute
		// nothing to the study and are not malformed.
		ownerID, hasOwner := parseInt(row.OwnerUserID)

		switch postType {
		case postTypeQuestion:
			d.Stats.Questions++
			if aid, ok := parseInt(row.AcceptedAnswerID); ok {
				accepted[aid] = struct{}{}
			}
			if !hasOwner {
				continue
			}
			user, retained := d.Users[ownerID]
			if !retained || row.Tags == "" {
				continue
			}
			for _, m := range reTagList.FindAllStringSubmatch(row.Tags, -1) {
				tag := m[1]
				if _, in := universe[tag]; in {
					user.TagPosts[tag]++
				}
			}

		case postTypeAnswer:
			if !hasOwner {
				continue
			}
			if _, retained := d.Users[ownerID]; !retained {
				continue
			}
			parentID, _ := parseInt(row.ParentID)
			d.Answers = append(d.Answers, model.Answer{
				ID:       id,
				OwnerID:  ownerID,
				ParentID: parentID,
				Score:    score,
				Body:     row.Body,
			})
		}
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "dump: stream posts")
	}

	for i := range d.Answers {
		if _, ok := accepted[d.Answers[i].ID]; ok {
			d.Answers[i].Accepted = true
		}
	}

	return nil
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
