package ingest

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/bot/bottest"
	"github.com/Oppen/mediabot/expiry"
	"github.com/Oppen/mediabot/media"
)

const (
	admin   = 1949883614
	visitor = 42
	staging = -1001
)

var shareLinkRe = regexp.MustCompile(`^https://t\.me/pompom_bot\?start=([0-9a-f]{16})$`)

type fixture struct {
	api *bottest.API
	b   *bot.Bot
	dir string
	in  *Ingest
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	api := bottest.New()
	cfg := bot.Config{
		Admins:        []int64{admin},
		TargetGroupID: staging,
		DeleteDelay:   600 * time.Second,
	}
	b := bot.New(api, tgbotapi.User{UserName: "pompom_bot"}, cfg, zap.NewNop())
	b.Media = openLibrary(t, dir)
	b.Expiry = expiry.NewScheduler(api, cfg.DeleteDelay, zap.NewNop())
	t.Cleanup(func() { _ = b.Expiry.Shutdown(context.Background(), false) })

	in := &Ingest{}
	require.NoError(t, in.Init(b))
	return &fixture{api: api, b: b, dir: dir, in: in}
}

func openLibrary(t *testing.T, dir string) *media.Library {
	t.Helper()
	video, err := media.OpenJSONStore(filepath.Join(dir, "videostore.json"), media.KindVideo, zap.NewNop())
	require.NoError(t, err)
	gif, err := media.OpenJSONStore(filepath.Join(dir, "gifstore.json"), media.KindGIF, zap.NewNop())
	require.NoError(t, err)
	lib, err := media.NewLibrary(video, gif, nil)
	require.NoError(t, err)
	return lib
}

func video(from int64, fileID, uniqueID string) *tgbotapi.Message {
	msg := bottest.Message(from, "")
	msg.Video = &tgbotapi.Video{FileID: fileID, FileUniqueID: uniqueID}
	return msg
}

func animation(from int64, fileID, uniqueID string) *tgbotapi.Message {
	msg := bottest.Message(from, "")
	msg.Animation = &tgbotapi.Animation{FileID: fileID, FileUniqueID: uniqueID}
	return msg
}

func document(from int64, fileID, uniqueID, mime string) *tgbotapi.Message {
	msg := bottest.Message(from, "")
	msg.Document = &tgbotapi.Document{FileID: fileID, FileUniqueID: uniqueID, MimeType: mime}
	return msg
}

func (f *fixture) handle(msg *tgbotapi.Message) {
	f.in.HandleMessage(context.Background(), f.b, bottest.Update(msg))
}

func TestIngest_Video(t *testing.T) {
	f := setup(t)

	f.handle(video(admin, "BAADvideo", "abc123"))

	links := f.api.Texts(staging)
	require.Len(t, links, 1)
	m := shareLinkRe.FindStringSubmatch(links[0])
	require.NotNil(t, m, links[0])
	token := m[1]

	rec, ok := f.b.Media.Video.Get(token)
	require.True(t, ok)
	assert.Equal(t, "BAADvideo", rec.FileID)
	assert.Equal(t, media.KindVideo, rec.Kind)
	assert.Equal(t, links[0], rec.ShareLink)

	// Admins get no reply in their own chat.
	assert.Empty(t, f.api.Texts(admin))
}

func TestIngest_Persisted(t *testing.T) {
	f := setup(t)

	f.handle(animation(admin, "CgACanim", "anim1"))
	m := shareLinkRe.FindStringSubmatch(f.api.Texts(staging)[0])
	require.NotNil(t, m)

	reopened := openLibrary(t, f.dir)
	rec, ok := reopened.Resolve(m[1])
	require.True(t, ok)
	assert.Equal(t, media.KindGIF, rec.Kind)
	assert.Equal(t, "CgACanim", rec.FileID)
	assert.False(t, rec.IsDocument())
}

func TestIngest_Documents(t *testing.T) {
	f := setup(t)

	f.handle(document(admin, "BQACmp4", "doc1", "video/mp4"))
	f.handle(document(admin, "BQACgif", "doc2", "image/gif"))
	f.handle(document(admin, "BQACpdf", "doc3", "application/pdf"))

	require.Len(t, f.api.Texts(staging), 2)
	videos, gifs := f.b.Media.Counts()
	assert.Equal(t, 0, videos)
	assert.Equal(t, 2, gifs)

	for _, link := range f.api.Texts(staging) {
		m := shareLinkRe.FindStringSubmatch(link)
		require.NotNil(t, m)
		rec, ok := f.b.Media.GIF.Get(m[1])
		require.True(t, ok)
		assert.True(t, rec.IsDocument())
	}
}

func TestIngest_SameFileTwice(t *testing.T) {
	f := setup(t)

	f.handle(video(admin, "BAADvideo", "abc123"))
	f.handle(video(admin, "BAADvideo", "abc123"))

	links := f.api.Texts(staging)
	require.Len(t, links, 2)
	assert.NotEqual(t, links[0], links[1])
	videos, _ := f.b.Media.Counts()
	assert.Equal(t, 2, videos)
}

func TestIngest_NonAdmin(t *testing.T) {
	f := setup(t)

	f.handle(video(visitor, "BAADvideo", "abc123"))

	texts := f.api.Texts(visitor)
	require.NotEmpty(t, texts)
	assert.Equal(t, DeniedText, texts[0])
	assert.Empty(t, f.api.Texts(staging))
	videos, gifs := f.b.Media.Counts()
	assert.Zero(t, videos+gifs)
	assert.Equal(t, 1, f.b.Expiry.Pending())
}

func TestIngest_NonAdminAnyDocument(t *testing.T) {
	f := setup(t)

	f.handle(document(visitor, "BQACpdf", "doc3", "application/pdf"))

	texts := f.api.Texts(visitor)
	require.NotEmpty(t, texts)
	assert.Equal(t, DeniedText, texts[0])
}

func TestIngest_IgnoresText(t *testing.T) {
	f := setup(t)

	f.handle(bottest.Message(visitor, "hello"))
	f.handle(bottest.Message(admin, "hello"))

	assert.Empty(t, f.api.Sent())
}

func TestProcess_PublishFailure(t *testing.T) {
	f := setup(t)
	f.api.SendHook = func(tgbotapi.Chattable) error {
		return &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	}

	rec, ok, err := Process(f.b, video(admin, "BAADvideo", "abc123"))
	require.Error(t, err)
	assert.True(t, ok)

	// The record is kept even if the link could not be posted.
	_, found := f.b.Media.Resolve(rec.Token)
	assert.True(t, found)
}

func TestClassify(t *testing.T) {
	up, ok := Classify(video(admin, "v", "uv"))
	require.True(t, ok)
	assert.Equal(t, Upload{FileID: "v", FileUniqueID: "uv", Kind: media.KindVideo}, up)

	up, ok = Classify(animation(admin, "a", "ua"))
	require.True(t, ok)
	assert.Equal(t, media.SourceAnimation, up.Source)

	up, ok = Classify(document(admin, "d", "ud", "image/gif"))
	require.True(t, ok)
	assert.Equal(t, media.KindGIF, up.Kind)
	assert.Equal(t, media.SourceDocument, up.Source)

	_, ok = Classify(document(admin, "d", "ud", "image/png"))
	assert.False(t, ok)
	_, ok = Classify(bottest.Message(admin, "text"))
	assert.False(t, ok)
}

func TestMediaCountAndClear(t *testing.T) {
	f := setup(t)
	f.handle(video(admin, "BAADvideo", "v1"))
	f.handle(animation(admin, "CgACanim", "a1"))
	f.handle(animation(admin, "CgACanim2", "a2"))

	MediaCount{}.HandleCommand(context.Background(), f.b, bottest.Command(admin, "/mediacount"))
	texts := f.api.Texts(admin)
	require.Len(t, texts, 1)
	assert.Equal(t, "Total GIF media stored: 2\nTotal Video media stored: 1", texts[0])

	ClearMedia{}.HandleCommand(context.Background(), f.b, bottest.Command(admin, "/clearmedia"))
	texts = f.api.Texts(admin)
	require.Len(t, texts, 2)
	assert.Equal(t, "All media links cleared.", texts[1])

	reopened := openLibrary(t, f.dir)
	videos, gifs := reopened.Counts()
	assert.Zero(t, videos)
	assert.Zero(t, gifs)

	MediaCount{}.HandleCommand(context.Background(), f.b, bottest.Command(admin, "/mediacount"))
	assert.Equal(t, "Total GIF media stored: 0\nTotal Video media stored: 0", f.api.Texts(admin)[2])
}

func TestCommandsArePrivileged(t *testing.T) {
	assert.True(t, MediaCount{}.RequiresPrivileges())
	assert.True(t, ClearMedia{}.RequiresPrivileges())
	assert.False(t, MediaCount{}.TakesLong())
}
