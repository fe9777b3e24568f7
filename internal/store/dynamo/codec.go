package dynamo

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"replicator/internal/job"
)

// Attribute names in the job table. These are part of the stored contract
// and shared with the workers that report progress.
const (
	attrJobID       = "job_id"
	attrStatus      = "status"
	attrCommand     = "command"
	attrSourceURL   = "source_url"
	attrTargetURL   = "target_url"
	attrFilter      = "filter"
	attrOptions     = "options"
	attrCreatedAt   = "created_at"
	attrUpdatedAt   = "updated_at"
	attrStartedAt   = "started_at"
	attrCompletedAt = "completed_at"
	attrInstanceID  = "instance_id"
	attrError       = "error"
	attrProgress    = "progress"
	attrExpiresAt   = "ttl"
)

func marshalRecord(rec *job.Record) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrJobID:     &types.AttributeValueMemberS{Value: rec.ID},
		attrStatus:    &types.AttributeValueMemberS{Value: string(rec.Status)},
		attrCreatedAt: &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}

	setStr := func(name, value string) {
		if value != "" {
			item[name] = &types.AttributeValueMemberS{Value: value}
		}
	}
	setStr(attrCommand, rec.Command)
	setStr(attrSourceURL, rec.SourceURL)
	setStr(attrTargetURL, rec.TargetURL)
	setStr(attrFilter, string(rec.Filter))
	setStr(attrOptions, string(rec.Options))
	setStr(attrInstanceID, rec.InstanceID)
	setStr(attrError, rec.Error)
	setStr(attrProgress, rec.Progress)

	setTime := func(name string, t *time.Time) {
		if t != nil {
			item[name] = &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
		}
	}
	setTime(attrUpdatedAt, rec.UpdatedAt)
	setTime(attrStartedAt, rec.StartedAt)
	setTime(attrCompletedAt, rec.CompletedAt)

	if rec.ExpiresAt > 0 {
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt, 10)}
	}

	return item
}

// unmarshalRecord decodes a stored item. Decoding is deliberately lenient:
// workers and older writers have produced records with missing or oddly
// formatted timestamps, and a read must never fail because of one. An
// unusable created_at yields a zero time, which downstream readers treat
// as "no trustworthy age".
func unmarshalRecord(item map[string]types.AttributeValue) *job.Record {
	rec := &job.Record{
		ID:          getStr(item, attrJobID),
		Status:      job.State(getStr(item, attrStatus)),
		Command:     getStr(item, attrCommand),
		SourceURL:   getStr(item, attrSourceURL),
		TargetURL:   getStr(item, attrTargetURL),
		InstanceID:  getStr(item, attrInstanceID),
		Error:       getStr(item, attrError),
		Progress:    getStr(item, attrProgress),
		CreatedAt:   getTime(item, attrCreatedAt),
		UpdatedAt:   getTimePtr(item, attrUpdatedAt),
		StartedAt:   getTimePtr(item, attrStartedAt),
		CompletedAt: getTimePtr(item, attrCompletedAt),
		ExpiresAt:   getInt64(item, attrExpiresAt),
	}
	if raw := getStr(item, attrFilter); raw != "" {
		rec.Filter = json.RawMessage(raw)
	}
	if raw := getStr(item, attrOptions); raw != "" {
		rec.Options = json.RawMessage(raw)
	}
	return rec
}

func getStr(item map[string]types.AttributeValue, name string) string {
	if av, ok := item[name].(*types.AttributeValueMemberS); ok {
		return av.Value
	}
	return ""
}

func getInt64(item map[string]types.AttributeValue, name string) int64 {
	if av, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(av.Value, 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}

// timeFormats are accepted on read, newest writer format first.
var timeFormats = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"}

func getTime(item map[string]types.AttributeValue, name string) time.Time {
	raw := getStr(item, name)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func getTimePtr(item map[string]types.AttributeValue, name string) *time.Time {
	t := getTime(item, name)
	if t.IsZero() {
		return nil
	}
	return &t
}
