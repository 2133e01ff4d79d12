package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

/*
Job is one bounded execution of a multi-stage crawl

Id: primary key, auto generated
CreatedAt: time when entity is created
UpdatedAt: time of the last status change
ProjectID:
Project: project this job crawls for, "belongs-to" relation
Platform: which platform pipeline runs this job
SourceID: platform native id of the source that triggered the job, null for
hashtag crawls
Config: platform specific crawl parameters, never mutated after creation
Status: one of new, running, done, error

Jobs are never deleted.
*/
type Job struct {
	Id        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ProjectID uint           `gorm:"not null;index"`
	Project   Project        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Platform  Platform       `gorm:"type:varchar(25);not null;index"`
	SourceID  *int64         `gorm:"index"`
	Config    datatypes.JSON `gorm:"not null"`
	Status    JobStatus      `gorm:"type:varchar(25);not null;default:'new'"`
}

// ConfigMap returns the job config as a generic map. Numbers are kept as
// json.Number so snowflake sized ids survive. An empty config yields an empty
// map.
func (j *Job) ConfigMap() (map[string]interface{}, error) {
	res := map[string]interface{}{}
	if len(j.Config) == 0 {
		return res, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(j.Config))
	decoder.UseNumber()
	if err := decoder.Decode(&res); err != nil {
		return nil, errors.Wrapf(err, "job %d has malformed config", j.Id)
	}
	return res, nil
}
