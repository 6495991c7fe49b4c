package repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensuse-zypp/zyppcore/pkg/variables"
)

const sampleRepoFile = `[packman]
name=Packman Repository
enabled=1
autorefresh=1
priority=90
baseurl=http://ftp.gwdg.de/pub/linux/packman/suse/openSUSE_Tumbleweed/
        http://packman.inode.at/suse/openSUSE_Tumbleweed/
type=rpm-md
gpgcheck=1
gpgkey=http://packman.links2linux.de/keyfile
keeppackages=0

[repo-oss]
name=openSUSE-OSS
enabled=1
autorefresh=0
priority=99
metalink=http://download.opensuse.org/tumbleweed/repo/oss/repomd/x.xml
type=rpm-md
`

func TestParseRepoFileSections(t *testing.T) {
	resolver := variables.New(nil)
	repos, err := ParseRepoFile(strings.NewReader(sampleRepoFile), resolver)
	require.NoError(t, err)
	require.Len(t, repos, 2)

	packman := repos[0]
	assert.Equal(t, "packman", packman.Alias)
	assert.Equal(t, "Packman Repository", packman.Name)
	assert.Equal(t, 90, packman.Priority)
	assert.Equal(t, TypeRpmMd, packman.Type)
	assert.Equal(t, Yes, packman.GPGCheck)
	require.Len(t, packman.BaseURLs, 2)
	assert.Equal(t, "http://ftp.gwdg.de/pub/linux/packman/suse/openSUSE_Tumbleweed/", packman.BaseURLs[0].Raw)
	assert.Equal(t, "http://packman.inode.at/suse/openSUSE_Tumbleweed/", packman.BaseURLs[1].Raw)
	require.Len(t, packman.GPGKeyURLs, 1)
	assert.False(t, packman.KeepPackages)

	oss := repos[1]
	assert.Equal(t, "repo-oss", oss.Alias)
	assert.Equal(t, MirrorKindMetalink, oss.MirrorKind)
	assert.Equal(t, "http://download.opensuse.org/tumbleweed/repo/oss/repomd/x.xml", oss.MirrorListURL.Raw)
	assert.False(t, oss.Autorefresh)
}

func TestRepoFileRoundTrip(t *testing.T) {
	resolver := variables.New(nil)
	repos, err := ParseRepoFile(strings.NewReader(sampleRepoFile), resolver)
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, WriteRepoFile(&buf, repos))

	reparsed, err := ParseRepoFile(strings.NewReader(buf.String()), resolver)
	require.NoError(t, err)
	require.Len(t, reparsed, len(repos))

	for i := range repos {
		assert.Equal(t, repos[i].Alias, reparsed[i].Alias)
		assert.Equal(t, repos[i].Name, reparsed[i].Name)
		assert.Equal(t, repos[i].Enabled, reparsed[i].Enabled)
		assert.Equal(t, repos[i].Autorefresh, reparsed[i].Autorefresh)
		assert.Equal(t, repos[i].Priority, reparsed[i].Priority)
		assert.Equal(t, repos[i].Type, reparsed[i].Type)
		assert.Equal(t, repos[i].MirrorKind, reparsed[i].MirrorKind)
		assert.Equal(t, repos[i].GPGCheck, reparsed[i].GPGCheck)
		assert.Equal(t, repos[i].KeepPackages, reparsed[i].KeepPackages)
		require.Equal(t, len(repos[i].BaseURLs), len(reparsed[i].BaseURLs))
		for j := range repos[i].BaseURLs {
			assert.Equal(t, repos[i].BaseURLs[j].Raw, reparsed[i].BaseURLs[j].Raw)
		}
	}
}

func TestRepoFileMirrorlistMetalinkMutuallyExclusive(t *testing.T) {
	r := New("x")
	r.MirrorKind = MirrorKindMirrorlist
	r.MirrorListURL = variables.NewPair("http://example.com/mirrorlist", nil)

	var buf strings.Builder
	require.NoError(t, WriteRepoFile(&buf, []RepoInfo{r}))
	out := buf.String()
	assert.Contains(t, out, "mirrorlist=http://example.com/mirrorlist")
	assert.NotContains(t, out, "metalink=")
}

const sampleServiceFile = `[repo-browser]
name=Repo Browser
enabled=1
autorefresh=1
url=https://download.opensuse.org/service/repo-browser
ttl=3600
repostoenable=repo-oss,repo-non-oss
repo_repo-oss_enabled=1
repo_repo-oss_autorefresh=0
repo_repo-oss_priority=50
`

func TestParseServiceFile(t *testing.T) {
	resolver := variables.New(nil)
	services, err := ParseServiceFile(strings.NewReader(sampleServiceFile), resolver)
	require.NoError(t, err)
	require.Len(t, services, 1)

	s := services[0]
	assert.Equal(t, "repo-browser", s.Alias)
	assert.Equal(t, "https://download.opensuse.org/service/repo-browser", s.URL)
	assert.Equal(t, time.Hour, s.TTL)
	assert.True(t, s.ReposToEnable["repo-oss"])
	assert.True(t, s.ReposToEnable["repo-non-oss"])
	st, ok := s.RepoStates["repo-oss"]
	require.True(t, ok)
	assert.True(t, st.Enabled)
	assert.False(t, st.Autorefresh)
	assert.Equal(t, 50, st.Priority)
}

func TestServiceFileRoundTrip(t *testing.T) {
	resolver := variables.New(nil)
	services, err := ParseServiceFile(strings.NewReader(sampleServiceFile), resolver)
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, WriteServiceFile(&buf, services))

	reparsed, err := ParseServiceFile(strings.NewReader(buf.String()), resolver)
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
	assert.Equal(t, services[0].URL, reparsed[0].URL)
	assert.Equal(t, services[0].TTL, reparsed[0].TTL)
	assert.Equal(t, services[0].ReposToEnable, reparsed[0].ReposToEnable)
	assert.Equal(t, services[0].RepoStates, reparsed[0].RepoStates)
}

func TestParseRepoFileKeyOutsideSectionErrors(t *testing.T) {
	_, err := ParseRepoFile(strings.NewReader("name=orphan\n"), variables.New(nil))
	assert.Error(t, err)
}
