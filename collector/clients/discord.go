package clients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Luismorlan/community/collector"
	"github.com/bwmarrin/discordgo"
)

const (
	KindChannelMessages = "channel_messages"

	discordMessagesPerPage = 100
	discordGuildsPerPage   = 200
	// Discord snowflakes count milliseconds from the first second of 2015.
	discordEpochMs = 1420070400000
)

// DiscordGuild and DiscordChannel are the discovery results, ids stay in the
// platform's string form.
type DiscordGuild struct {
	ID   string
	Name string
}

type DiscordChannel struct {
	ID   string
	Name string
}

// DiscordClient reads channel history and enumerates guilds through a bot
// session. It never opens the gateway.
type DiscordClient struct {
	session *discordgo.Session
}

// NewDiscordClient builds a REST only session for the bot token.
func NewDiscordClient(botToken string) (*DiscordClient, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, err
	}
	return &DiscordClient{session: session}, nil
}

// Fetch pages forward through a channel with the after cursor, starting at
// q.Since. Records are the message objects as Discord sends them.
func (d *DiscordClient) Fetch(ctx context.Context, q collector.Query, cursor string) (collector.Page, error) {
	if q.Kind != KindChannelMessages {
		return collector.Page{}, fmt.Errorf("discord client does not support %s", q.Kind)
	}
	after := cursor
	if after == "" && !q.Since.IsZero() {
		after = SnowflakeFromTime(q.Since)
	}
	messages, err := d.session.ChannelMessages(q.Target, discordMessagesPerPage, "", after, "", discordgo.WithContext(ctx))
	if err != nil {
		return collector.Page{}, translateDiscordError(err)
	}
	return MessagesToPage(messages)
}

// Guilds lists every guild the bot is a member of.
func (d *DiscordClient) Guilds(ctx context.Context) ([]DiscordGuild, error) {
	res := []DiscordGuild{}
	after := ""
	for {
		guilds, err := d.session.UserGuilds(discordGuildsPerPage, "", after, false, discordgo.WithContext(ctx))
		if err != nil {
			return nil, translateDiscordError(err)
		}
		for _, g := range guilds {
			res = append(res, DiscordGuild{ID: g.ID, Name: g.Name})
		}
		if len(guilds) < discordGuildsPerPage {
			return res, nil
		}
		after = guilds[len(guilds)-1].ID
	}
}

// TextChannels lists the text channels of a guild, other channel types are
// never crawled.
func (d *DiscordClient) TextChannels(ctx context.Context, guildID string) ([]DiscordChannel, error) {
	channels, err := d.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translateDiscordError(err)
	}
	res := []DiscordChannel{}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText {
			res = append(res, DiscordChannel{ID: ch.ID, Name: ch.Name})
		}
	}
	return res, nil
}

// MessagesToPage converts a history response into a page. The newest message
// id is the cursor for the next page, a short page is the last one.
func MessagesToPage(messages []*discordgo.Message) (collector.Page, error) {
	page := collector.Page{}
	if len(messages) == 0 {
		return page, nil
	}
	sort.Slice(messages, func(i, j int) bool {
		return snowflakeLess(messages[i].ID, messages[j].ID)
	})
	for _, m := range messages {
		record, err := collector.NewRecord(m)
		if err != nil {
			return collector.Page{}, err
		}
		ts := m.Timestamp
		if m.EditedTimestamp != nil {
			ts = *m.EditedTimestamp
		}
		record["timestamp"] = ts.UTC().Format(time.RFC3339Nano)
		if m.Author != nil {
			record["user_id"] = m.Author.ID
		}
		page.Records = append(page.Records, record)
	}
	if len(messages) == discordMessagesPerPage {
		page.NextCursor = messages[len(messages)-1].ID
	}
	return page, nil
}

// SnowflakeFromTime returns the smallest snowflake created at t.
func SnowflakeFromTime(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMs
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms<<22, 10)
}

func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func translateDiscordError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return collector.NewHTTPError(restErr.Response.StatusCode, string(restErr.ResponseBody))
	}
	return err
}
