package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openJSON(t *testing.T, dir string, kind Kind) *JSONStore {
	t.Helper()
	s, err := OpenJSONStore(filepath.Join(dir, string(kind)+"store.json"), kind, zap.NewNop())
	require.NoError(t, err)
	return s
}

func newJSONLibrary(t *testing.T, dir string) *Library {
	t.Helper()
	lib, err := NewLibrary(openJSON(t, dir, KindVideo), openJSON(t, dir, KindGIF), nil)
	require.NoError(t, err)
	return lib
}

func TestGenerateToken(t *testing.T) {
	a := GenerateToken("abc123")
	b := GenerateToken("abc123")

	assert.Len(t, a, TokenLen)
	assert.True(t, ValidToken(a))
	assert.True(t, ValidToken(b))
	assert.NotEqual(t, a, b, "same media must get a fresh token each time")
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("0123456789abcdef"))
	assert.False(t, ValidToken("0123456789ABCDEF"))
	assert.False(t, ValidToken("0123456789abcde"))
	assert.False(t, ValidToken("0123456789abcdeg"))
	assert.False(t, ValidToken(""))
}

func TestShareLink(t *testing.T) {
	assert.Equal(t, "https://t.me/pompom_bot?start=0123456789abcdef", ShareLink("pompom_bot", "0123456789abcdef"))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("gif")
	require.NoError(t, err)
	assert.Equal(t, KindGIF, k)

	_, err = ParseKind("photo")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestJSONStore_PutGetReload(t *testing.T) {
	dir := t.TempDir()
	s := openJSON(t, dir, KindVideo)

	rec := Record{FileID: "BAADfile", ShareLink: "https://t.me/b?start=0123456789abcdef"}
	require.NoError(t, s.Put("0123456789abcdef", rec))

	got, ok := s.Get("0123456789abcdef")
	require.True(t, ok)
	assert.Equal(t, "BAADfile", got.FileID)
	assert.Equal(t, KindVideo, got.Kind)
	assert.Equal(t, "0123456789abcdef", got.Token)

	reloaded := openJSON(t, dir, KindVideo)
	got, ok = reloaded.Get("0123456789abcdef")
	require.True(t, ok)
	assert.Equal(t, rec.ShareLink, got.ShareLink)
	assert.Equal(t, 1, reloaded.Len())
}

func TestJSONStore_SnapshotLayout(t *testing.T) {
	dir := t.TempDir()
	s := openJSON(t, dir, KindGIF)
	require.NoError(t, s.Put("00000000000000aa", Record{FileID: "CgAC", ShareLink: "l", Source: SourceDocument}))

	raw, err := os.ReadFile(filepath.Join(dir, "gifstore.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"00000000000000aa": {"file_id": "CgAC", "type": "gif", "share_link": "l", "source": "document"}}`, string(raw))
}

func TestJSONStore_LoadsLegacySnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gifstore.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
    "1111111111111111": {
        "file_id": "CgACAgQ",
        "type": "gif",
        "share_link": "https://t.me/b?start=1111111111111111"
    }
}`), 0o644))

	s, err := OpenJSONStore(path, KindGIF, zap.NewNop())
	require.NoError(t, err)
	rec, ok := s.Get("1111111111111111")
	require.True(t, ok)
	assert.False(t, rec.IsDocument())
}

func TestJSONStore_CorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "videostore.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := OpenJSONStore(path, KindVideo, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestJSONStore_PersistFailureKeepsMemory(t *testing.T) {
	s, err := OpenJSONStore(filepath.Join(t.TempDir(), "missing", "videostore.json"), KindVideo, zap.NewNop())
	require.NoError(t, err)

	err = s.Put("0123456789abcdef", Record{FileID: "f"})
	require.Error(t, err)

	_, ok := s.Get("0123456789abcdef")
	assert.True(t, ok)
}

func TestOpenJSONStore_UnknownKind(t *testing.T) {
	_, err := OpenJSONStore(filepath.Join(t.TempDir(), "x.json"), Kind("photo"), zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestLibrary_ResolveOrder(t *testing.T) {
	lib := newJSONLibrary(t, t.TempDir())

	require.NoError(t, lib.GIF.Put("0123456789abcdef", Record{FileID: "gif"}))
	rec, ok := lib.Resolve("0123456789abcdef")
	require.True(t, ok)
	assert.Equal(t, KindGIF, rec.Kind)

	require.NoError(t, lib.Video.Put("0123456789abcdef", Record{FileID: "video"}))
	rec, ok = lib.Resolve("0123456789abcdef")
	require.True(t, ok)
	assert.Equal(t, KindVideo, rec.Kind)
	assert.Equal(t, "video", rec.FileID)

	_, ok = lib.Resolve("ffffffffffffffff")
	assert.False(t, ok)
}

func TestLibrary_ClearAllSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	lib := newJSONLibrary(t, dir)

	tokens := []string{GenerateToken("a"), GenerateToken("b")}
	require.NoError(t, lib.Video.Put(tokens[0], Record{FileID: "a"}))
	require.NoError(t, lib.GIF.Put(tokens[1], Record{FileID: "b"}))

	videos, gifs := lib.Counts()
	assert.Equal(t, 1, videos)
	assert.Equal(t, 1, gifs)

	require.NoError(t, lib.ClearAll())
	for _, tok := range tokens {
		assert.False(t, lib.Contains(tok))
	}

	reloaded := newJSONLibrary(t, dir)
	videos, gifs = reloaded.Counts()
	assert.Zero(t, videos)
	assert.Zero(t, gifs)
}

func TestLibrary_StoreFor(t *testing.T) {
	lib := newJSONLibrary(t, t.TempDir())

	s, err := lib.StoreFor(KindGIF)
	require.NoError(t, err)
	assert.Equal(t, KindGIF, s.Kind())

	_, err = lib.StoreFor("photo")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewLibrary_RejectsSwappedStores(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLibrary(openJSON(t, dir, KindGIF), openJSON(t, dir, KindVideo), nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestBadgerStore(t *testing.T) {
	db, err := OpenDB(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	video, err := db.Store(KindVideo)
	require.NoError(t, err)
	gif, err := db.Store(KindGIF)
	require.NoError(t, err)
	lib, err := NewLibrary(video, gif, db)
	require.NoError(t, err)
	defer lib.Close()

	require.NoError(t, video.Put("0123456789abcdef", Record{FileID: "v", ShareLink: "l"}))
	require.NoError(t, gif.Put("fedcba9876543210", Record{FileID: "g", Source: SourceDocument}))

	rec, ok := lib.Resolve("0123456789abcdef")
	require.True(t, ok)
	assert.Equal(t, "v", rec.FileID)
	assert.Equal(t, KindVideo, rec.Kind)

	rec, ok = lib.Resolve("fedcba9876543210")
	require.True(t, ok)
	assert.True(t, rec.IsDocument())

	// Same keyspace, different prefixes.
	_, ok = gif.Get("0123456789abcdef")
	assert.False(t, ok)

	assert.Equal(t, 1, video.Len())
	require.NoError(t, video.Clear())
	assert.Equal(t, 0, video.Len())
	assert.Equal(t, 1, gif.Len())
}

func TestLibrary_PersistRetriesFailedWrite(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data")
	lib := newJSONLibrary(t, dir)

	// The directory does not exist yet, so the write behind Put fails.
	require.Error(t, lib.Video.Put("0123456789abcdef", Record{FileID: "f"}))
	require.Error(t, lib.Persist())

	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, lib.Persist())

	reopened := newJSONLibrary(t, dir)
	rec, ok := reopened.Resolve("0123456789abcdef")
	require.True(t, ok)
	assert.Equal(t, "f", rec.FileID)
}
