package dump

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirical-se/expertise-cli/internal/config"
)

const tagsXML = `<?xml version="1.0" encoding="utf-8"?>
<tags>
  <row Id="1" TagName="python" Count="900" />
  <row Id="2" TagName="javascript" Count="800" />
  <row Id="3" TagName="go" Count="700" />
  <row Id="4" TagName="fortran" Count="5" />
</tags>`

const usersXML = `<?xml version="1.0" encoding="utf-8"?>
<users>
  <row Id="10" Reputation="5000" />
  <row Id="11" Reputation="150" />
  <row Id="12" Reputation="50" />
  <row Id="13" Reputation="oops" />
</users>`

const postsXML = `<?xml version="1.0" encoding="utf-8"?>
<posts>
  <row Id="100" PostTypeId="1" OwnerUserId="10" Score="3" AcceptedAnswerId="200" Tags="&lt;python&gt;&lt;go&gt;" />
  <row Id="101" PostTypeId="1" OwnerUserId="10" Score="1" Tags="&lt;python&gt;&lt;fortran&gt;" />
  <row Id="102" PostTypeId="1" OwnerUserId="12" Score="9" Tags="&lt;python&gt;" />
  <row Id="200" PostTypeId="2" OwnerUserId="11" ParentId="100" Score="4" Body="&lt;p&gt;use a dict&lt;/p&gt;" />
  <row Id="201" PostTypeId="2" OwnerUserId="12" ParentId="100" Score="2" Body="low rep author" />
  <row Id="202" PostTypeId="2" ParentId="102" Score="1" Body="deleted author" />
  <row Id="203" PostTypeId="bogus" OwnerUserId="11" Body="bad type" />
</posts>`

func writeDump(t *testing.T, tags, users, posts string) config.DumpConfig {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"Tags.xml":  tags,
		"Users.xml": users,
		"Posts.xml": posts,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return config.DumpConfig{Dir: dir, UsersFile: "Users.xml", PostsFile: "Posts.xml", TagsFile: "Tags.xml"}
}

func TestLoad(t *testing.T) {
	dumpCfg := writeDump(t, tagsXML, usersXML, postsXML)
	filterCfg := config.FilterConfig{TopNTags: 3, MinReputation: 100}

	ds, err := Load(context.Background(), dumpCfg, filterCfg)
	require.NoError(t, err)

	// Top-3 universe excludes fortran.
	require.Len(t, ds.TopTags, 3)
	assert.Equal(t, "python", ds.TopTags[0].Name)

	// Reputation filter: 10 and 11 retained, 12 (rep 50) gone, 13 malformed.
	require.Len(t, ds.Users, 2)
	assert.Equal(t, 1, ds.Stats.Malformed["users"])

	// User 10 asked under python twice, go once; fortran is outside the
	// universe and does not count.
	assert.Equal(t, map[string]int{"python": 2, "go": 1}, ds.Users[10].TagPosts)

	// Only the answer by a retained user survives; its acceptance comes
	// from the parent question row.
	require.Len(t, ds.Answers, 1)
	ans := ds.Answers[0]
	assert.Equal(t, 200, ans.ID)
	assert.Equal(t, 11, ans.OwnerID)
	assert.Equal(t, 100, ans.ParentID)
	assert.True(t, ans.Accepted)
	assert.Equal(t, "<p>use a dict</p>", ans.Body)

	// Bad PostTypeId counted, deleted-author answer skipped silently.
	assert.Equal(t, 1, ds.Stats.Malformed["posts"])
	assert.Equal(t, 7, ds.Stats.PostsRead)
}

func TestLoad_MissingTableIsFatal(t *testing.T) {
	dumpCfg := writeDump(t, tagsXML, usersXML, postsXML)
	dumpCfg.PostsFile = "Nope.xml"

	_, err := Load(context.Background(), dumpCfg, config.FilterConfig{TopNTags: 3, MinReputation: 100})
	assert.Error(t, err)
}

func TestLoad_MalformedTagRows(t *testing.T) {
	badTags := `<tags>
  <row Id="1" TagName="python" Count="900" />
  <row Id="2" TagName="" Count="800" />
  <row Id="3" TagName="go" Count="NaN" />
</tags>`
	dumpCfg := writeDump(t, badTags, usersXML, postsXML)

	ds, err := Load(context.Background(), dumpCfg, config.FilterConfig{TopNTags: 10, MinReputation: 100})
	require.NoError(t, err)
	assert.Len(t, ds.TopTags, 1)
	assert.Equal(t, 2, ds.Stats.Malformed["tags"])
}

func TestLoad_TruncatedTableIsFatal(t *testing.T) {
	dumpCfg := writeDump(t, tagsXML, usersXML, `<posts><row Id="1" PostTypeId="1"`)

	_, err := Load(context.Background(), dumpCfg, config.FilterConfig{TopNTags: 3, MinReputation: 100})
	assert.Error(t, err)
}

func TestLoad_TopTagOrderingStable(t *testing.T) {
	tiedTags := `<tags>
  <row Id="1" TagName="beta" Count="10" />
  <row Id="2" TagName="alpha" Count="10" />
  <row Id="3" TagName="gamma" Count="10" />
</tags>`
	dumpCfg := writeDump(t, tiedTags, usersXML, postsXML)

	ds, err := Load(context.Background(), dumpCfg, config.FilterConfig{TopNTags: 2, MinReputation: 100})
	require.NoError(t, err)
	require.Len(t, ds.TopTags, 2)
	assert.Equal(t, "alpha", ds.TopTags[0].Name)
	assert.Equal(t, "beta", ds.TopTags[1].Name)
}
