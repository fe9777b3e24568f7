package dynamo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"replicator/internal/job"
)

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()
	created := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	started := created.Add(2 * time.Minute)
	rec := &job.Record{
		ID:         "job-1",
		Status:     job.StateRunning,
		Command:    "replicate",
		SourceURL:  "s3://src/data",
		TargetURL:  "s3://dst/data",
		Filter:     json.RawMessage(`{"prefix":"2025/"}`),
		Options:    json.RawMessage(`{"bandwidth_mbps":50}`),
		CreatedAt:  created,
		StartedAt:  &started,
		InstanceID: "i-0abc",
		Progress:   `{"bytes_copied":42}`,
		ExpiresAt:  created.Add(720 * time.Hour).Unix(),
	}

	got := unmarshalRecord(marshalRecord(rec))

	if got.ID != rec.ID || got.Status != rec.Status || got.Command != rec.Command {
		t.Errorf("Identity fields changed: %+v", got)
	}
	if got.SourceURL != rec.SourceURL || got.TargetURL != rec.TargetURL {
		t.Errorf("URL fields changed: %+v", got)
	}
	if string(got.Filter) != string(rec.Filter) || string(got.Options) != string(rec.Options) {
		t.Errorf("Opaque payloads changed: filter=%s options=%s", got.Filter, got.Options)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at %v, got %v", created, got.CreatedAt)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("Expected started_at %v, got %v", started, got.StartedAt)
	}
	if got.CompletedAt != nil {
		t.Error("Expected nil completed_at")
	}
	if got.ExpiresAt != rec.ExpiresAt {
		t.Errorf("Expected expires_at %d, got %d", rec.ExpiresAt, got.ExpiresAt)
	}
}

func TestUnmarshalLenientTimestamps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		createdAt types.AttributeValue
		wantZero  bool
	}{
		{
			name:      "rfc3339 nano",
			createdAt: &types.AttributeValueMemberS{Value: "2025-06-01T10:30:00.123456789Z"},
		},
		{
			name:      "rfc3339 seconds",
			createdAt: &types.AttributeValueMemberS{Value: "2025-06-01T10:30:00Z"},
		},
		{
			name:      "legacy space-separated",
			createdAt: &types.AttributeValueMemberS{Value: "2025-06-01 10:30:00"},
		},
		{
			name:      "garbage",
			createdAt: &types.AttributeValueMemberS{Value: "yesterday-ish"},
			wantZero:  true,
		},
		{
			name:      "wrong type",
			createdAt: &types.AttributeValueMemberN{Value: "1748773800"},
			wantZero:  true,
		},
		{
			name:     "absent",
			wantZero: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			item := map[string]types.AttributeValue{
				attrJobID:  &types.AttributeValueMemberS{Value: "j1"},
				attrStatus: &types.AttributeValueMemberS{Value: "pending"},
			}
			if tt.createdAt != nil {
				item[attrCreatedAt] = tt.createdAt
			}

			rec := unmarshalRecord(item)
			if rec.ID != "j1" {
				t.Fatalf("Expected decode to succeed, got %+v", rec)
			}
			if tt.wantZero != rec.CreatedAt.IsZero() {
				t.Errorf("Expected zero=%v, got created_at=%v", tt.wantZero, rec.CreatedAt)
			}
		})
	}
}

func TestMarshalOmitsEmptyFields(t *testing.T) {
	t.Parallel()
	item := marshalRecord(&job.Record{
		ID:        "j1",
		Status:    job.StateProvisioning,
		CreatedAt: time.Now().UTC(),
	})

	for _, name := range []string{attrInstanceID, attrError, attrProgress, attrFilter, attrOptions, attrExpiresAt} {
		if _, ok := item[name]; ok {
			t.Errorf("Expected %s to be omitted when empty", name)
		}
	}
}
