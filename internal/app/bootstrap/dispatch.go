package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/briefing-platform/internal/config"
	"github.com/wolfman30/briefing-platform/internal/dispatch"
)

// BuildQueue selects the in-process queue or SQS.
func BuildQueue(cfg *appconfig.Config, awsCfg *aws.Config) (dispatch.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: missing config")
	}
	if cfg.UseMemoryQueue {
		return dispatch.NewMemoryQueue(cfg.MemoryQueueBuffer), nil
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: aws config required for SQS dispatch")
	}
	return dispatch.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.BriefingQueueURL)
}
