package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	appconfig "github.com/wolfman30/briefing-platform/internal/config"
)

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "sa-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if awsCfg.Region != "sa-east-1" {
		t.Fatalf("expected region sa-east-1, got %s", awsCfg.Region)
	}
	ep, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(sqs.ServiceID, "sa-east-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ep.URL != "http://localhost:4566" {
		t.Fatalf("expected override endpoint, got %s", ep.URL)
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint("DynamoDB", "sa-east-1"); err == nil {
		t.Fatalf("expected unmatched service to fall through")
	}
}

func TestNeedsAWS(t *testing.T) {
	if NeedsAWS(&appconfig.Config{UseMemoryQueue: true, EmailProvider: "sendgrid"}) {
		t.Fatalf("memory queue with sendgrid needs no AWS")
	}
	if !NeedsAWS(&appconfig.Config{UseMemoryQueue: true, ArchiveBucket: "b"}) {
		t.Fatalf("archive bucket needs AWS")
	}
	if !NeedsAWS(&appconfig.Config{UseMemoryQueue: false}) {
		t.Fatalf("SQS dispatch needs AWS")
	}
}
