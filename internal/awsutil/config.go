// Package awsutil builds the shared AWS client configuration.
package awsutil

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"replicator/internal/config"
)

// Endpoint returns the AWS endpoint override, if any. Set AWS_ENDPOINT_URL
// to point every AWS client at a local stack (moto, LocalStack) instead of
// the real service endpoints.
func Endpoint() string {
	return config.GetEnv("AWS_ENDPOINT_URL", "")
}

// Load resolves AWS configuration from the default credential chain.
//
// When an endpoint override is active and no real credentials are present,
// dummy static credentials are injected so local stacks accept the requests
// without any profile setup.
func Load(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if Endpoint() != "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts,
			awsconfig.WithRegion(config.GetEnv("AWS_REGION", "us-east-1")),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
