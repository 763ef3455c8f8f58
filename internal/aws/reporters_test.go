package aws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Reporter_Report(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ls := testutil.NewTestLocalStack(t)
	ctx := context.Background()

	cfg := config.AWSConfig{
		Region:      "us-east-1",
		EndpointURL: ls.Endpoint,
		Bucket:      "error-reports-test",
	}
	reporter, err := NewS3Reporter(ls.Config, cfg)
	require.NoError(t, err)
	require.NoError(t, reporter.CreateBucket(ctx))

	err = reporter.Report(ctx, "FATAL ERROR orders 500 UNHANDLED_SERVER_ERROR", `{"error_id": "abc"}`)
	require.NoError(t, err)

	keys, err := reporter.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	data, err := reporter.GetReport(ctx, keys[0])
	require.NoError(t, err)

	var stored storedReport
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "FATAL ERROR orders 500 UNHANDLED_SERVER_ERROR", stored.Title)
	assert.JSONEq(t, `{"error_id": "abc"}`, string(stored.Report))
}

func TestSESReporter_Report(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ls := testutil.NewTestLocalStack(t)
	ctx := context.Background()

	cfg := config.AWSConfig{
		Region:      "us-east-1",
		EndpointURL: ls.Endpoint,
		FromEmail:   "crash@example.com",
	}
	reporter, err := NewSESReporter(ls.Config, cfg, "oncall@example.com")
	require.NoError(t, err)
	require.NoError(t, reporter.VerifyEmailIdentity(ctx))

	err = reporter.Report(ctx, "NON-FATAL ERROR orders getOrder()", `{"title": "slow"}`)
	assert.NoError(t, err)
}

func TestNewReporters_Validation(t *testing.T) {
	_, err := NewS3Reporter(testutil.StaticAWSConfig(), config.AWSConfig{})
	assert.Error(t, err)

	_, err = NewSESReporter(testutil.StaticAWSConfig(), config.AWSConfig{FromEmail: "a@b.c"}, "")
	assert.Error(t, err)
}
