package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dealscout/models"
)

type fakePutter struct {
	key  string
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiveUploadsReport(t *testing.T) {
	put := &fakePutter{}
	a := NewS3ArchiveWithClient(put, "bucket", "dealscout")
	r := &models.TickReport{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
		Persisted: 4,
	}

	if err := a.Archive(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if put.key != "dealscout/reports/2026/03/01/run-1.json" {
		t.Errorf("key: got %q", put.key)
	}
	var got models.TickReport
	if err := json.Unmarshal(put.body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Persisted != 4 {
		t.Errorf("Persisted: got %d, want 4", got.Persisted)
	}
}

func TestS3ArchiveWrapsError(t *testing.T) {
	boom := errors.New("access denied")
	a := NewS3ArchiveWithClient(&fakePutter{err: boom}, "bucket", "")
	err := a.Archive(context.Background(), &models.TickReport{RunID: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
