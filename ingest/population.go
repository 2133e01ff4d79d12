package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/utils"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// UserSource is one table whose actor ids become platform users.
type UserSource struct {
	Table string
	// Column holding the platform user id of the actor.
	IDColumn string
	// Path of the username inside the data payload, nil when the table
	// carries no username.
	UsernamePath []string
}

// UserPopulation tells PopulateUsers where a platform's users come from.
type UserPopulation struct {
	UserTable string
	Sources   []UserSource
}

// PopulateUsers inserts every actor of job that has no platform user yet, in a
// single INSERT ... SELECT over the union of all sources. An actor seen with
// several usernames keeps the largest one. Afterwards usernames of this job
// wrapped in literal double quotes are unwrapped, extraction on postgres keeps
// the json quoting. Returns the number of users inserted.
func PopulateUsers(ctx context.Context, db *gorm.DB, job *model.Job, spec UserPopulation) (int64, error) {
	tx := db.WithContext(context.WithoutCancel(ctx))
	selects := make([]string, 0, len(spec.Sources))
	args := make([]interface{}, 0, len(spec.Sources))
	for _, src := range spec.Sources {
		username := "CAST(NULL AS TEXT)"
		if len(src.UsernamePath) > 0 {
			username = utils.JSONTextExpr(db, "data", src.UsernamePath...)
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT DISTINCT %[1]s AS id, %[2]s AS username, job_id FROM %[3]s "+
				"WHERE job_id = ? AND %[1]s NOT IN (SELECT id FROM %[4]s)",
			src.IDColumn, username, src.Table, spec.UserTable))
		args = append(args, job.Id)
	}
	if len(selects) == 0 {
		return 0, nil
	}
	// WHERE true keeps sqlite from reading ON CONFLICT as a join constraint.
	insert := fmt.Sprintf(
		"INSERT INTO %s (id, username, job_id) SELECT id, MAX(username), job_id FROM (%s) c "+
			"WHERE true GROUP BY id, job_id ON CONFLICT (id) DO NOTHING",
		spec.UserTable, strings.Join(selects, " UNION "))
	res := tx.Exec(insert, args...)
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "fail to populate %s for job %d", spec.UserTable, job.Id)
	}

	if err := StripQuotedUsernames(ctx, db, spec.UserTable, job.Id); err != nil {
		return res.RowsAffected, err
	}
	return res.RowsAffected, nil
}

// StripQuotedUsernames removes one leading and one trailing double quote from
// usernames of the job's users that carry both.
func StripQuotedUsernames(ctx context.Context, db *gorm.DB, userTable string, jobID uint) error {
	err := db.WithContext(context.WithoutCancel(ctx)).Exec(fmt.Sprintf(
		`UPDATE %s SET username = substr(username, 2, length(username) - 2) WHERE job_id = ? AND username LIKE '"%%"'`,
		userTable), jobID).Error
	return errors.Wrapf(err, "fail to strip quoted usernames of %s for job %d", userTable, jobID)
}
