package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/dailyreport/internal/chart"
)

func TestParseChat(t *testing.T) {
	tests := []struct {
		in   string
		want destination
	}{
		{"@daily_metrics", destination{kind: destUsername, username: "daily_metrics"}},
		{"daily_metrics", destination{kind: destUsername, username: "daily_metrics"}},
		{" 123456 ", destination{kind: destUser, id: 123456}},
		{"-4242", destination{kind: destChat, id: 4242}},
		{"-1001234567890", destination{kind: destChannel, id: 1234567890}},
	}
	for _, tt := range tests {
		got, err := parseChat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "@", "0", "two words"} {
		_, err := parseChat(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewTelegramValidates(t *testing.T) {
	ok := TelegramConfig{AppID: 1, AppHash: "hash", BotToken: "token", Chat: "@chan"}
	_, err := NewTelegram(ok, nil)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*TelegramConfig){
		"app id":   func(c *TelegramConfig) { c.AppID = 0 },
		"app hash": func(c *TelegramConfig) { c.AppHash = "" },
		"token":    func(c *TelegramConfig) { c.BotToken = "" },
		"chat":     func(c *TelegramConfig) { c.Chat = "" },
	} {
		cfg := ok
		mutate(&cfg)
		_, err := NewTelegram(cfg, nil)
		assert.Error(t, err, name)
	}
}

type fakePeerAPI struct {
	resolved *tg.ContactsResolvedPeer
	chats    []tg.ChatClass
	users    []tg.UserClass
	err      error
}

func (f *fakePeerAPI) ContactsResolveUsername(context.Context, *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error) {
	return f.resolved, f.err
}

func (f *fakePeerAPI) ChannelsGetChannels(context.Context, []tg.InputChannelClass) (tg.MessagesChatsClass, error) {
	return &tg.MessagesChats{Chats: f.chats}, f.err
}

func (f *fakePeerAPI) UsersGetUsers(context.Context, []tg.InputUserClass) ([]tg.UserClass, error) {
	return f.users, f.err
}

func TestResolvePeerUsernameChannel(t *testing.T) {
	api := &fakePeerAPI{resolved: &tg.ContactsResolvedPeer{
		Peer:  &tg.PeerChannel{ChannelID: 77},
		Chats: []tg.ChatClass{&tg.Channel{ID: 76, AccessHash: 1}, &tg.Channel{ID: 77, AccessHash: 99}},
	}}
	peer, err := resolvePeer(context.Background(), api, destination{kind: destUsername, username: "chan"})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 77, AccessHash: 99}, peer)
}

func TestResolvePeerUsernameUser(t *testing.T) {
	api := &fakePeerAPI{resolved: &tg.ContactsResolvedPeer{
		Peer:  &tg.PeerUser{UserID: 5},
		Users: []tg.UserClass{&tg.User{ID: 5, AccessHash: 55}},
	}}
	peer, err := resolvePeer(context.Background(), api, destination{kind: destUsername, username: "someone"})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerUser{UserID: 5, AccessHash: 55}, peer)
}

func TestResolvePeerByID(t *testing.T) {
	api := &fakePeerAPI{
		chats: []tg.ChatClass{&tg.Channel{ID: 1234567890, AccessHash: 7}},
		users: []tg.UserClass{&tg.User{ID: 42, AccessHash: 8}},
	}
	ctx := context.Background()

	peer, err := resolvePeer(ctx, api, destination{kind: destChannel, id: 1234567890})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 1234567890, AccessHash: 7}, peer)

	peer, err = resolvePeer(ctx, api, destination{kind: destUser, id: 42})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerUser{UserID: 42, AccessHash: 8}, peer)

	peer, err = resolvePeer(ctx, api, destination{kind: destChat, id: 4242})
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerChat{ChatID: 4242}, peer)

	_, err = resolvePeer(ctx, api, destination{kind: destUser, id: 43})
	assert.Error(t, err)
}

func TestResolvePeerError(t *testing.T) {
	api := &fakePeerAPI{err: errors.New("USERNAME_NOT_OCCUPIED")}
	_, err := resolvePeer(context.Background(), api, destination{kind: destUsername, username: "ghost"})
	assert.ErrorContains(t, err, "USERNAME_NOT_OCCUPIED")
}

type fakeSender struct {
	calls    []string
	messages []*tg.MessagesSendMessageRequest
	media    []*tg.MessagesSendMediaRequest
	mediaErr error
}

func (f *fakeSender) MessagesSendMessage(_ context.Context, req *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error) {
	f.calls = append(f.calls, "message")
	f.messages = append(f.messages, req)
	return &tg.Updates{}, nil
}

func (f *fakeSender) MessagesSendMedia(_ context.Context, req *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error) {
	f.calls = append(f.calls, "media")
	if f.mediaErr != nil {
		return nil, f.mediaErr
	}
	f.media = append(f.media, req)
	return &tg.Updates{}, nil
}

type fakeUploader struct {
	name string
	data []byte
	err  error
}

func (f *fakeUploader) FromBytes(_ context.Context, name string, b []byte) (tg.InputFileClass, error) {
	f.name, f.data = name, b
	if f.err != nil {
		return nil, f.err
	}
	return &tg.InputFile{ID: 1, Parts: 1, Name: name}, nil
}

var testPeer = &tg.InputPeerChannel{ChannelID: 77, AccessHash: 99}

func TestSendUploadFailurePostsNothing(t *testing.T) {
	api := &fakeSender{}
	up := &fakeUploader{err: errors.New("FLOOD_WAIT_30")}

	err := send(context.Background(), api, up, testPeer, "Daily app report for 09.02.26", testImage())
	assert.ErrorContains(t, err, "FLOOD_WAIT_30")
	assert.Empty(t, api.calls)
}

func TestSendReportAsCaption(t *testing.T) {
	api := &fakeSender{}
	up := &fakeUploader{}
	text := "Daily app report for 09.02.26\nFeed\n- CTR: 0.20 (5.0%)"

	require.NoError(t, send(context.Background(), api, up, testPeer, text, testImage()))
	assert.Equal(t, []string{"media"}, api.calls)
	assert.Equal(t, "02.02.26-09.02.26.png", up.name)
	assert.Equal(t, testImage().PNG, up.data)

	req := api.media[0]
	assert.Equal(t, testPeer, req.Peer)
	assert.Equal(t, text, req.Message)
	assert.Equal(t, reportEntities(text), req.Entities)
	photo, ok := req.Media.(*tg.InputMediaUploadedPhoto)
	require.True(t, ok)
	assert.Equal(t, &tg.InputFile{ID: 1, Parts: 1, Name: "02.02.26-09.02.26.png"}, photo.File)
}

func TestSendLongReportTextThenPhoto(t *testing.T) {
	api := &fakeSender{}
	text := "Daily app report for 09.02.26\n" + strings.Repeat("x", captionLimit)

	require.NoError(t, send(context.Background(), api, &fakeUploader{}, testPeer, text, testImage()))
	assert.Equal(t, []string{"message", "media"}, api.calls)
	assert.Equal(t, testPeer, api.messages[0].Peer)
	assert.Equal(t, text, api.messages[0].Message)
	assert.Equal(t, testPeer, api.media[0].Peer)
	assert.Empty(t, api.media[0].Message)
	assert.NotEqual(t, api.messages[0].RandomID, api.media[0].RandomID)
}

func TestSendMediaFailure(t *testing.T) {
	api := &fakeSender{mediaErr: errors.New("PHOTO_INVALID_DIMENSIONS")}

	err := send(context.Background(), api, &fakeUploader{}, testPeer, "Daily app report", testImage())
	assert.ErrorContains(t, err, "PHOTO_INVALID_DIMENSIONS")
	assert.Equal(t, []string{"media"}, api.calls)
	assert.Empty(t, api.messages)
}

func TestSendWithoutChart(t *testing.T) {
	api := &fakeSender{}
	up := &fakeUploader{}

	require.NoError(t, send(context.Background(), api, up, testPeer, "Daily app report", nil))
	assert.Equal(t, []string{"message"}, api.calls)
	assert.Empty(t, up.name)
	assert.Equal(t, "Daily app report", api.messages[0].Message)
}

func TestReportEntities(t *testing.T) {
	text := "Daily app report for 09.02.26\nTotal: 1\nFeed\n- x\nMessages\n- y"
	assert.Equal(t, []tg.MessageEntityClass{
		&tg.MessageEntityBold{Offset: 0, Length: 29},
		&tg.MessageEntityItalic{Offset: 39, Length: 4},
		&tg.MessageEntityItalic{Offset: 48, Length: 8},
	}, reportEntities(text))

	// Offsets count UTF-16 units: the emoji is a surrogate pair.
	assert.Equal(t, []tg.MessageEntityClass{
		&tg.MessageEntityBold{Offset: 0, Length: 9},
		&tg.MessageEntityItalic{Offset: 10, Length: 4},
	}, reportEntities("Report \U0001F4C8\nFeed"))
}

func testImage() *chart.Image {
	return &chart.Image{Name: "02.02.26-09.02.26.png", PNG: []byte("\x89PNG fake")}
}

func TestDirectoryDispatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := &Directory{Dir: dir}

	require.NoError(t, d.Dispatch(context.Background(), "Daily app report", testImage()))

	text, err := os.ReadFile(filepath.Join(dir, "02.02.26-09.02.26.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Daily app report\n", string(text))

	png, err := os.ReadFile(filepath.Join(dir, "02.02.26-09.02.26.png"))
	require.NoError(t, err)
	assert.Equal(t, testImage().PNG, png)
}

func TestDirectoryDispatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := filepath.Join(t.TempDir(), "out")

	err := (&Directory{Dir: dir}).Dispatch(ctx, "text", testImage())
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriterDispatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Writer{W: &buf}).Dispatch(context.Background(), "Daily app report", testImage()))
	assert.Contains(t, buf.String(), "Daily app report\n")
	assert.Contains(t, buf.String(), "[chart 02.02.26-09.02.26.png, 9 bytes]")
}
