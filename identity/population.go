// Package identity folds per platform users into canonical cross platform
// users.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/Luismorlan/community/model"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// platformColumn pairs a platform user table with the User column holding
// that platform's username.
type platformColumn struct {
	table  string
	column string
}

var platformColumns = []platformColumn{
	{table: model.DiscordUser{}.TableName(), column: "discord_username"},
	{table: model.GithubUser{}.TableName(), column: "github_username"},
	{table: model.TwitterUser{}.TableName(), column: "twitter_username"},
}

// MergeHook is where references to a duplicate get moved. MergeAll calls it
// only for rows whose duplicate_of_id it changed in that run. Rows already
// pointing at their canonical user are skipped, so a rerun over merged data
// calls it zero times. Clearing a stale pointer on a canonical user does not
// call it.
type MergeHook func(ctx context.Context, userID, finalID uint) error

// LogMergeHook only logs.
func LogMergeHook(ctx context.Context, userID, finalID uint) error {
	Logger.Log.WithFields(logrus.Fields{"user_id": userID, "final_id": finalID}).Info("merged user")
	return nil
}

type Engine struct {
	db   *gorm.DB
	hook MergeHook
}

// NewEngine falls back to LogMergeHook when hook is nil.
func NewEngine(db *gorm.DB, hook MergeHook) *Engine {
	if hook == nil {
		hook = LogMergeHook
	}
	return &Engine{db: db, hook: hook}
}

// PopulateProject runs PopulateUsers then PopulateMembers for project.
func (e *Engine) PopulateProject(ctx context.Context, projectID uint) error {
	created, err := e.PopulateUsers(ctx, projectID)
	if err != nil {
		return err
	}
	members, err := e.PopulateMembers(ctx, projectID)
	if err != nil {
		return err
	}
	Logger.Log.WithField("project_id", projectID).
		Infof("populated %d users and %d project members", created, members)
	return nil
}

// PopulateUsers creates one User per platform username seen in the project
// that no User carries yet, in a single INSERT ... SELECT. The platform user
// with the smallest id supplies name and data, the two other username columns
// stay null. Returns the number of users created.
func (e *Engine) PopulateUsers(ctx context.Context, projectID uint) (int64, error) {
	selects := make([]string, 0, len(platformColumns))
	args := make([]interface{}, 0, len(platformColumns))
	for _, pc := range platformColumns {
		columns := make([]string, 0, len(platformColumns))
		for _, other := range platformColumns {
			if other.column == pc.column {
				columns = append(columns, "p.username")
			} else {
				columns = append(columns, "CAST(NULL AS TEXT)")
			}
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT %[1]s, p.name, p.data FROM %[2]s p WHERE p.id IN ("+
				"SELECT MIN(u.id) FROM %[2]s u JOIN jobs j ON j.id = u.job_id "+
				"WHERE j.project_id = ? AND u.username IS NOT NULL AND u.username <> '' "+
				"AND u.username NOT IN (SELECT %[3]s FROM users WHERE %[3]s IS NOT NULL) "+
				"GROUP BY u.username)",
			strings.Join(columns, ", "), pc.table, pc.column))
		args = append(args, projectID)
	}
	insert := fmt.Sprintf(
		"INSERT INTO users (discord_username, github_username, twitter_username, name, data) %s",
		strings.Join(selects, " UNION ALL "))
	res := e.db.WithContext(context.WithoutCancel(ctx)).Exec(insert, args...)
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "fail to populate users of project %d", projectID)
	}
	return res.RowsAffected, nil
}

// PopulateMembers attaches to project every User whose platform username
// shows up among the project's platform users. Returns the number of
// memberships created.
func (e *Engine) PopulateMembers(ctx context.Context, projectID uint) (int64, error) {
	matches := make([]string, 0, len(platformColumns))
	args := []interface{}{projectID}
	for _, pc := range platformColumns {
		matches = append(matches, fmt.Sprintf(
			"u.%s IN (SELECT p.username FROM %s p JOIN jobs j ON j.id = p.job_id WHERE j.project_id = ?)",
			pc.column, pc.table))
		args = append(args, projectID)
	}
	args = append(args, projectID)
	insert := fmt.Sprintf(
		"INSERT INTO project_members (user_id, project_id) SELECT u.id, CAST(? AS BIGINT) FROM users u "+
			"WHERE (%s) AND NOT EXISTS (SELECT 1 FROM project_members m WHERE m.user_id = u.id AND m.project_id = ?) "+
			"ON CONFLICT DO NOTHING",
		strings.Join(matches, " OR "))
	res := e.db.WithContext(context.WithoutCancel(ctx)).Exec(insert, args...)
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "fail to populate members of project %d", projectID)
	}
	return res.RowsAffected, nil
}
