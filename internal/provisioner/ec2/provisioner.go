// Package ec2 provisions replication workers as EC2 instances.
//
// Each job gets its own instance, launched from a worker AMI with the job
// spec injected through user data. Instances terminate themselves when the
// worker script exits; the reconciler handles the ones that never do.
package ec2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"replicator/internal/awsutil"
	"replicator/internal/job"
)

// API is the EC2 surface the provisioner uses.
type API interface {
	RunInstances(ctx context.Context, params *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
}

// Provisioner is the EC2-backed job.Provisioner.
type Provisioner struct {
	client API
	cfg    WorkerConfig
	logger *slog.Logger
}

var _ job.Provisioner = (*Provisioner)(nil)

// New creates a provisioner from the ambient AWS credential chain and the
// WORKER_* environment.
func New(ctx context.Context) (*Provisioner, error) {
	awsCfg, err := awsutil.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awsec2.NewFromConfig(awsCfg, func(o *awsec2.Options) {
		if endpoint := awsutil.Endpoint(); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewWithClient(client, LoadConfigFromEnv())
}

// NewWithClient creates a provisioner around an existing client.
func NewWithClient(client API, cfg WorkerConfig) (*Provisioner, error) {
	if cfg.AMIID == "" {
		return nil, errors.New("WORKER_AMI_ID is required for the ec2 provisioner")
	}
	return &Provisioner{
		client: client,
		cfg:    cfg,
		logger: slog.With("component", "ec2-provisioner"),
	}, nil
}

// Launch starts a worker instance for the job and returns its instance ID.
func (p *Provisioner) Launch(ctx context.Context, rec *job.Record) (string, error) {
	userData, err := buildUserData(rec)
	if err != nil {
		return "", err
	}

	out, err := p.client.RunInstances(ctx, &awsec2.RunInstancesInput{
		ImageId:      aws.String(p.cfg.AMIID),
		InstanceType: ec2types.InstanceType(p.cfg.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		IamInstanceProfile: &ec2types.IamInstanceProfileSpecification{
			Name: aws.String(p.cfg.IAMRole),
		},
		UserData: aws.String(userData),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{
				{Key: aws.String("Name"), Value: aws.String("replication-worker-" + rec.ID)},
				{Key: aws.String("JobId"), Value: aws.String(rec.ID)},
				{Key: aws.String("ManagedBy"), Value: aws.String("replicator")},
			},
		}},
		// The worker script shuts the instance down when it finishes;
		// terminate-on-shutdown keeps finished workers from lingering
		// as stopped instances.
		InstanceInitiatedShutdownBehavior: ec2types.ShutdownBehaviorTerminate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to launch worker: %w", err)
	}
	if len(out.Instances) == 0 || out.Instances[0].InstanceId == nil {
		return "", errors.New("launch returned no instance")
	}

	instanceID := aws.ToString(out.Instances[0].InstanceId)
	p.logger.Info("Worker instance launched", "jobId", rec.ID, "instanceId", instanceID, "instanceType", p.cfg.InstanceType)
	return instanceID, nil
}

// Describe reports the lifecycle state of a worker instance. An instance
// EC2 no longer knows about maps to InstanceNotFound with a nil error;
// terminated instances age out of the API after a while and that is an
// answer, not a failure.
func (p *Provisioner) Describe(ctx context.Context, instanceID string) (job.InstanceState, error) {
	out, err := p.client.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if isNotFound(err) {
			return job.InstanceNotFound, nil
		}
		return "", fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}

	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return job.InstanceNotFound, nil
	}
	instance := out.Reservations[0].Instances[0]
	if instance.State == nil {
		return job.InstanceNotFound, nil
	}
	return mapState(instance.State.Name), nil
}

// Ready verifies the EC2 API is reachable with the current credentials.
func (p *Provisioner) Ready(ctx context.Context) error {
	_, err := p.client.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
		MaxResults: aws.Int32(5),
	})
	if err != nil {
		return fmt.Errorf("ec2 unreachable: %w", err)
	}
	return nil
}

func mapState(name ec2types.InstanceStateName) job.InstanceState {
	switch name {
	case ec2types.InstanceStateNamePending:
		return job.InstancePending
	case ec2types.InstanceStateNameRunning:
		return job.InstanceRunning
	case ec2types.InstanceStateNameStopping:
		return job.InstanceStopping
	case ec2types.InstanceStateNameStopped:
		return job.InstanceStopped
	case ec2types.InstanceStateNameShuttingDown:
		return job.InstanceShuttingDown
	case ec2types.InstanceStateNameTerminated:
		return job.InstanceTerminated
	default:
		return job.InstanceNotFound
	}
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidInstanceID.NotFound" || apiErr.ErrorCode() == "InvalidInstanceID.Malformed"
	}
	return false
}
