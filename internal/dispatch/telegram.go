// Package dispatch delivers finished reports to their destination.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/TobiSchelling/dailyreport/internal/chart"
)

// TelegramConfig holds bot credentials and the fixed destination chat.
type TelegramConfig struct {
	AppID       int
	AppHash     string
	BotToken    string
	Chat        string
	SessionPath string
}

// Telegram posts the report to one chat as the caption of the chart photo,
// logged in as a bot over MTProto.
type Telegram struct {
	cfg  TelegramConfig
	dest destination
	log  *zap.SugaredLogger
}

// NewTelegram validates the configuration. No connection is made until
// Dispatch.
func NewTelegram(cfg TelegramConfig, log *zap.SugaredLogger) (*Telegram, error) {
	switch {
	case cfg.AppID == 0:
		return nil, errors.New("telegram: app_id is not set")
	case cfg.AppHash == "":
		return nil, errors.New("telegram: app hash is not set")
	case cfg.BotToken == "":
		return nil, errors.New("telegram: bot token is not set")
	}
	dest, err := parseChat(cfg.Chat)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Telegram{cfg: cfg, dest: dest, log: log}, nil
}

// Dispatch connects, authorises the bot if the session is new and sends the
// report. Nothing is posted unless the chart upload succeeded.
func (t *Telegram) Dispatch(ctx context.Context, text string, img *chart.Image) error {
	if t.cfg.SessionPath != "" {
		if err := os.MkdirAll(filepath.Dir(t.cfg.SessionPath), 0o700); err != nil {
			return fmt.Errorf("creating session dir: %w", err)
		}
	}

	opts := telegram.Options{Logger: t.log.Desugar().Named("telegram")}
	if t.cfg.SessionPath != "" {
		opts.SessionStorage = &telegram.FileSessionStorage{Path: t.cfg.SessionPath}
	}
	client := telegram.NewClient(t.cfg.AppID, t.cfg.AppHash, opts)

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := client.Auth().Bot(ctx, t.cfg.BotToken); err != nil {
				return fmt.Errorf("bot login: %w", err)
			}
		}

		api := client.API()
		peer, err := resolvePeer(ctx, api, t.dest)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", t.cfg.Chat, err)
		}

		if err := send(ctx, api, uploader.NewUploader(api), peer, text, img); err != nil {
			return err
		}
		t.log.Infof("Sent report to %s", t.cfg.Chat)
		return nil
	})
}

// captionLimit is the longest photo caption Telegram accepts, in UTF-16 units.
const captionLimit = 1024

// sender is the part of tg.Client used to post the report.
type sender interface {
	MessagesSendMessage(ctx context.Context, req *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesSendMedia(ctx context.Context, req *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error)
}

type fileUploader interface {
	FromBytes(ctx context.Context, name string, b []byte) (tg.InputFileClass, error)
}

// send uploads the chart before anything is posted, then delivers the report
// as the chart's caption in a single request. A report too long for a caption
// goes out as a text message followed by the uploaded photo.
func send(ctx context.Context, api sender, up fileUploader, peer tg.InputPeerClass, text string, img *chart.Image) error {
	entities := reportEntities(text)
	if img == nil {
		_, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     peer,
			Message:  text,
			Entities: entities,
			RandomID: rand.Int64(),
		})
		if err != nil {
			return fmt.Errorf("sending text: %w", err)
		}
		return nil
	}

	file, err := up.FromBytes(ctx, img.Name, img.PNG)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", img.Name, err)
	}
	media := &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    &tg.InputMediaUploadedPhoto{File: file},
		RandomID: rand.Int64(),
	}

	if utf16Len(text) <= captionLimit {
		media.Message = text
		media.Entities = entities
		if _, err := api.MessagesSendMedia(ctx, media); err != nil {
			return fmt.Errorf("sending report: %w", err)
		}
		return nil
	}

	if _, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		Entities: entities,
		RandomID: rand.Int64(),
	}); err != nil {
		return fmt.Errorf("sending text: %w", err)
	}
	if _, err := api.MessagesSendMedia(ctx, media); err != nil {
		return fmt.Errorf("sending %s: %w", img.Name, err)
	}
	return nil
}

type destKind int

const (
	destUsername destKind = iota
	destUser
	destChat
	destChannel
)

// destination is a parsed chat setting.
type destination struct {
	kind     destKind
	username string
	id       int64
}

// parseChat accepts "@name", a bare username, a positive user id, a negative
// basic group id or a "-100"-prefixed channel id.
func parseChat(s string) (destination, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return destination{}, errors.New("telegram: chat is not set")
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		name := strings.TrimPrefix(s, "@")
		if name == "" || strings.ContainsAny(name, " /") {
			return destination{}, fmt.Errorf("telegram: invalid chat %q", s)
		}
		return destination{kind: destUsername, username: name}, nil
	}

	switch {
	case id == 0:
		return destination{}, fmt.Errorf("telegram: invalid chat id %q", s)
	case id > 0:
		return destination{kind: destUser, id: id}, nil
	case strings.HasPrefix(s, "-100") && len(s) > 4:
		ch, _ := strconv.ParseInt(s[4:], 10, 64)
		return destination{kind: destChannel, id: ch}, nil
	default:
		return destination{kind: destChat, id: -id}, nil
	}
}

// peerAPI is the part of tg.Client used to resolve a destination.
type peerAPI interface {
	ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	ChannelsGetChannels(ctx context.Context, id []tg.InputChannelClass) (tg.MessagesChatsClass, error)
	UsersGetUsers(ctx context.Context, id []tg.InputUserClass) ([]tg.UserClass, error)
}

func resolvePeer(ctx context.Context, api peerAPI, d destination) (tg.InputPeerClass, error) {
	switch d.kind {
	case destChat:
		return &tg.InputPeerChat{ChatID: d.id}, nil

	case destChannel:
		// Bots may look up channels with a zero access hash.
		res, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: d.id}})
		if err != nil {
			return nil, err
		}
		return peerFromChats(res.GetChats(), d.id)

	case destUser:
		users, err := api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUser{UserID: d.id}})
		if err != nil {
			return nil, err
		}
		return peerFromUsers(users, d.id)

	default:
		res, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: d.username})
		if err != nil {
			return nil, err
		}
		switch p := res.Peer.(type) {
		case *tg.PeerChannel:
			return peerFromChats(res.Chats, p.ChannelID)
		case *tg.PeerChat:
			return &tg.InputPeerChat{ChatID: p.ChatID}, nil
		case *tg.PeerUser:
			return peerFromUsers(res.Users, p.UserID)
		}
		return nil, fmt.Errorf("unsupported peer %T", res.Peer)
	}
}

func peerFromChats(chats []tg.ChatClass, id int64) (tg.InputPeerClass, error) {
	for _, c := range chats {
		switch ch := c.(type) {
		case *tg.Channel:
			if ch.ID == id {
				return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
			}
		case *tg.Chat:
			if ch.ID == id {
				return &tg.InputPeerChat{ChatID: ch.ID}, nil
			}
		}
	}
	return nil, fmt.Errorf("chat %d not found", id)
}

func peerFromUsers(users []tg.UserClass, id int64) (tg.InputPeerClass, error) {
	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == id {
			return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, nil
		}
	}
	return nil, fmt.Errorf("user %d not found", id)
}
