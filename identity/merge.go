package identity

import (
	"context"
	"sort"

	"github.com/Luismorlan/community/model"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/pkg/errors"
)

// Candidate is the part of a User the merge looks at.
type Candidate struct {
	Id            uint
	Name          *string
	DuplicateOfID *uint
}

// Group is one identity: the canonical user and the users folded into it.
type Group struct {
	Final      Candidate
	Duplicates []Candidate
}

// Merge groups users by exact name and elects the smallest id of each group
// as canonical. Users without a name are left out. Groups come back ordered
// by canonical id, duplicates by id.
func Merge(users []Candidate) []Group {
	byName := map[string][]Candidate{}
	for _, u := range users {
		name := model.StringValue(u.Name)
		if name == "" {
			continue
		}
		byName[name] = append(byName[name], u)
	}
	groups := make([]Group, 0, len(byName))
	for _, members := range byName {
		sort.Slice(members, func(i, j int) bool { return members[i].Id < members[j].Id })
		groups = append(groups, Group{Final: members[0], Duplicates: members[1:]})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Final.Id < groups[j].Final.Id })
	return groups
}

// MergeAll points every named user at the canonical user of its name group.
// Users already pointing there are skipped and a canonical user loses any
// stale pointer, so a second run changes nothing. Returns the number of rows
// updated.
func (e *Engine) MergeAll(ctx context.Context) (int, error) {
	var users []Candidate
	err := e.db.WithContext(ctx).Model(&model.User{}).
		Select("id", "name", "duplicate_of_id").Order("id").Find(&users).Error
	if err != nil {
		return 0, errors.Wrap(err, "fail to load users")
	}
	tx := e.db.WithContext(context.WithoutCancel(ctx))
	updated := 0
	for _, g := range Merge(users) {
		if g.Final.DuplicateOfID != nil {
			if err := tx.Model(&model.User{}).Where("id = ?", g.Final.Id).Update("duplicate_of_id", nil).Error; err != nil {
				return updated, errors.Wrapf(err, "fail to reset user %d", g.Final.Id)
			}
			updated++
		}
		for _, d := range g.Duplicates {
			if d.DuplicateOfID != nil && *d.DuplicateOfID == g.Final.Id {
				continue
			}
			if err := tx.Model(&model.User{}).Where("id = ?", d.Id).Update("duplicate_of_id", g.Final.Id).Error; err != nil {
				return updated, errors.Wrapf(err, "fail to merge user %d into %d", d.Id, g.Final.Id)
			}
			updated++
			if err := e.hook(ctx, d.Id, g.Final.Id); err != nil {
				return updated, errors.Wrapf(err, "merge hook failed for user %d", d.Id)
			}
		}
	}
	Logger.Log.Infof("merge updated %d users", updated)
	return updated, nil
}

// UniqueUser is a canonical user with the smallest username of each platform
// across its group.
type UniqueUser struct {
	Id              uint
	Name            *string
	DiscordUsername *string
	GithubUsername  *string
	TwitterUsername *string
}

func (e *Engine) UniqueUsers(ctx context.Context) ([]UniqueUser, error) {
	var res []UniqueUser
	err := e.db.WithContext(ctx).Raw(
		"SELECT u.id, u.name, MIN(d.discord_username) AS discord_username, " +
			"MIN(d.github_username) AS github_username, MIN(d.twitter_username) AS twitter_username " +
			"FROM users u JOIN users d ON d.duplicate_of_id = u.id OR d.id = u.id " +
			"WHERE u.duplicate_of_id IS NULL GROUP BY u.id, u.name ORDER BY u.id").
		Scan(&res).Error
	if err != nil {
		return nil, errors.Wrap(err, "fail to load unique users")
	}
	return res, nil
}
