package aws

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/USSTM/microservice/internal/logging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

const imdsTimeout = 500 * time.Millisecond

// EC2Detector tells whether the process runs on an EC2 instance by asking the
// instance metadata service once.
type EC2Detector struct {
	client *imds.Client

	once  sync.Once
	isEC2 bool
}

func NewEC2Detector(awsCfg aws.Config) *EC2Detector {
	client := imds.NewFromConfig(awsCfg, func(o *imds.Options) {
		o.Retryer = aws.NopRetryer{}
	})
	return &EC2Detector{client: client}
}

// NewEC2DetectorWithEndpoint points the detector at a custom metadata endpoint.
func NewEC2DetectorWithEndpoint(endpoint string) *EC2Detector {
	client := imds.New(imds.Options{
		Endpoint: endpoint,
		Retryer:  aws.NopRetryer{},
	})
	return &EC2Detector{client: client}
}

func (d *EC2Detector) IsEC2Instance(ctx context.Context) bool {
	d.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
		defer cancel()

		out, err := d.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
		if err != nil {
			logging.Debug("Not running on an EC2 instance", "error", err)
			return
		}
		defer out.Content.Close()

		id, err := io.ReadAll(out.Content)
		if err != nil || len(id) == 0 {
			return
		}

		logging.Info("Running on an EC2 instance", "instance_id", string(id))
		d.isEC2 = true
	})
	return d.isEC2
}
