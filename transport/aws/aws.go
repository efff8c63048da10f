// Package aws provides the AWS SNS and SQS protocol handlers for asyncflow.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/asyncflow/transport"
)

// Names used to register the handlers.
const (
	SNSTransportName = "sns"
	SQSTransportName = "sqs"
)

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
)

// DefaultConfigLoader allows overriding AWS config loading for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// TopicResolverFactory allows overriding SNS topic ARN generation for testing.
var TopicResolverFactory = sns.NewGenerateArnTopicResolver

// PublisherFactory allows overriding the SNS publisher creation for testing.
var PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sns.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the SNS subscriber creation for testing.
var SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return sns.NewSubscriber(cfg, sqsCfg, logger)
}

// QueuePublisherFactory allows overriding the SQS publisher creation for testing.
var QueuePublisherFactory = func(cfg sqs.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sqs.NewPublisher(cfg, logger)
}

// QueueSubscriberFactory allows overriding the SQS subscriber creation for testing.
var QueueSubscriberFactory = func(cfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return sqs.NewSubscriber(cfg, logger)
}

func init() {
	transport.Register(SNSTransportName, BuildSNS, transport.SNSCapabilities)
	transport.Register(SQSTransportName, BuildSQS, transport.SQSCapabilities)
}

// BuildSNS creates the SNS handler. Topics are the channel binding's "name"
// or the channel address; subscriptions are delivered through SQS queues
// named after the topic.
func BuildSNS(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.ProtocolHandler, error) {
	s, err := newSession(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return transport.NewWatermillHandler(transport.WatermillConfig{
		Capabilities: transport.SNSCapabilities,
		Logger:       s.logger,
		Endpoint:     s.region,
		Topic: func(oc transport.OperationContext) string {
			return bindingName(oc, "name")
		},
		NewPublisher:  s.topicPublisher,
		NewSubscriber: s.topicSubscriber,
	}), nil
}

// BuildSQS creates the SQS handler. Queues are the channel binding's
// queue.name or the channel address.
func BuildSQS(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.ProtocolHandler, error) {
	s, err := newSession(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return transport.NewWatermillHandler(transport.WatermillConfig{
		Capabilities: transport.SQSCapabilities,
		Logger:       s.logger,
		Endpoint:     s.region,
		Topic: func(oc transport.OperationContext) string {
			return bindingName(oc, "queue", "name")
		},
		NewPublisher: func(region string, _ transport.OperationContext) (message.Publisher, error) {
			_, sqsOpts, err := s.endpointOptions()
			if err != nil {
				return nil, err
			}
			return QueuePublisherFactory(sqs.PublisherConfig{AWSConfig: s.regional(region), OptFns: sqsOpts}, s.logger)
		},
		NewSubscriber: func(region string, _ transport.OperationContext) (message.Subscriber, error) {
			_, sqsOpts, err := s.endpointOptions()
			if err != nil {
				return nil, err
			}
			return QueueSubscriberFactory(sqs.SubscriberConfig{AWSConfig: s.regional(region), OptFns: sqsOpts}, s.logger)
		},
	}), nil
}

// Capabilities returns the capabilities of the SNS handler.
func Capabilities() transport.Capabilities {
	return transport.SNSCapabilities
}

// session holds the AWS config shared by the publishers and subscribers of
// one handler. Clients are created per region.
type session struct {
	cfg    transport.Config
	aws    aws.Config
	logger watermill.LoggerAdapter
}

func newSession(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (*session, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg != nil {
		if region := cfg.GetAWSRegion(); region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		if key, secret := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); key != "" && secret != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(key, secret)))
		}
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg != nil && cfg.GetAWSRegion() != "" {
		awsCfg.Region = cfg.GetAWSRegion()
	}
	if cfg != nil && cfg.GetAWSEndpoint() != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.GetAWSEndpoint())
	}

	s := &session{cfg: cfg, aws: awsCfg, logger: logger}
	logger.Info("Created AWS config", watermill.LogFields{
		"region":          awsCfg.Region,
		"custom_endpoint": s.customEndpoint() != "",
	})
	return s, nil
}

// region is the handler endpoint: the region named by the server host, else
// the configured one.
func (s *session) region(oc transport.OperationContext) (string, error) {
	return Region(oc.Host(), s.aws.Region), nil
}

func (s *session) regional(region string) aws.Config {
	awsCfg := s.aws.Copy()
	if region != "" {
		awsCfg.Region = region
	}
	return awsCfg
}

func (s *session) customEndpoint() string {
	if s.aws.BaseEndpoint == nil {
		return ""
	}
	return *s.aws.BaseEndpoint
}

func (s *session) endpointOptions() ([]func(*amazonsns.Options), []func(*amazonsqs.Options), error) {
	raw := s.customEndpoint()
	if raw == "" {
		return nil, nil, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse aws endpoint: %w", err)
	}
	endpoint := smithyendpoints.Endpoint{URI: *parsed}
	return []func(*amazonsns.Options){amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{Endpoint: endpoint})},
		[]func(*amazonsqs.Options){amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{Endpoint: endpoint})},
		nil
}

func (s *session) topicResolver(region string) (sns.TopicResolver, error) {
	accountID := AccountID(s.cfg)
	resolver, err := TopicResolverFactory(accountID, region)
	if err != nil {
		return nil, fmt.Errorf("create sns topic resolver for account %q in %q: %w", accountID, region, err)
	}
	return resolver, nil
}

func (s *session) topicPublisher(region string, _ transport.OperationContext) (message.Publisher, error) {
	awsCfg := s.regional(region)
	resolver, err := s.topicResolver(awsCfg.Region)
	if err != nil {
		return nil, err
	}
	snsOpts, _, err := s.endpointOptions()
	if err != nil {
		return nil, err
	}
	return PublisherFactory(sns.PublisherConfig{
		TopicResolver: resolver,
		AWSConfig:     awsCfg,
		OptFns:        snsOpts,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}, s.logger)
}

func (s *session) topicSubscriber(region string, _ transport.OperationContext) (message.Subscriber, error) {
	awsCfg := s.regional(region)
	resolver, err := s.topicResolver(awsCfg.Region)
	if err != nil {
		return nil, err
	}
	snsOpts, sqsOpts, err := s.endpointOptions()
	if err != nil {
		return nil, err
	}
	return SubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig:            awsCfg,
			OptFns:               snsOpts,
			TopicResolver:        resolver,
			GenerateSqsQueueName: queueNameFromTopic,
		},
		sqs.SubscriberConfig{AWSConfig: awsCfg, OptFns: sqsOpts},
		s.logger,
	)
}

func queueNameFromTopic(_ context.Context, topicArn sns.TopicArn) (string, error) {
	topic, err := sns.ExtractTopicNameFromTopicArn(topicArn)
	if err != nil {
		return "", err
	}
	return string(topic), nil
}

func bindingName(oc transport.OperationContext, path ...string) string {
	if name := transport.BindingString(oc.ChannelBinding(), path...); name != "" {
		return name
	}
	return oc.Channel()
}

// Region returns the region of an AWS service host such as
// sns.eu-west-1.amazonaws.com, or fallback for any other host.
func Region(host, fallback string) string {
	host, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(host)), ":")
	labels := strings.Split(host, ".")
	if len(labels) >= 4 && labels[len(labels)-2] == "amazonaws" && (labels[0] == "sns" || labels[0] == "sqs") {
		return labels[1]
	}
	return fallback
}

// AccountID returns the configured account id. With a custom endpoint an
// empty or malformed id falls back to the LocalStack account.
func AccountID(cfg transport.Config) string {
	if cfg == nil {
		return ""
	}
	accountID := strings.Trim(cfg.GetAWSAccountID(), "\"' ")
	if cfg.GetAWSEndpoint() != "" && len(accountID) != awsAccountIDLength {
		return localstackAccountID
	}
	return accountID
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
