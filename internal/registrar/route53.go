package registrar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/tenant-domains/internal/config"
	"github.com/ignite/tenant-domains/internal/domain"
	"github.com/ignite/tenant-domains/internal/pkg/logger"
)

const route53Provider = "route53"

// route53API is the subset of the Route53 client used here.
type route53API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
}

// Route53Client manages tenant records in a Route53 hosted zone for the
// base domain. It offers the same operations as the REST Client.
type Route53Client struct {
	api          route53API
	hostedZoneID string
	// credsErr is why no AWS credentials could be resolved at startup.
	credsErr error
}

// credentialsTimeout bounds the credential chain lookup (IMDS on EC2/ECS).
const credentialsTimeout = 5 * time.Second

// NewRoute53Client creates a Route53-backed registrar client. Static keys
// are used when configured; otherwise the default AWS credential chain
// applies (IAM role on ECS). Credentials are resolved once here; a client
// without them reports itself unconfigured.
func NewRoute53Client(ctx context.Context, cfg config.RegistrarConfig) (*Route53Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return newRoute53ClientFromConfig(ctx, awsCfg, cfg.HostedZoneID), nil
}

func newRoute53ClientFromConfig(ctx context.Context, awsCfg aws.Config, hostedZoneID string) *Route53Client {
	client := &Route53Client{
		api:          route53.NewFromConfig(awsCfg),
		hostedZoneID: hostedZoneID,
	}

	if awsCfg.Credentials == nil {
		client.credsErr = errors.New("no AWS credentials provider")
	} else {
		credCtx, cancel := context.WithTimeout(ctx, credentialsTimeout)
		defer cancel()
		if _, err := awsCfg.Credentials.Retrieve(credCtx); err != nil {
			client.credsErr = err
		}
	}
	if client.credsErr != nil {
		logger.Warn("route53: AWS credentials unavailable", "error", client.credsErr)
	}
	return client
}

func newRoute53ClientWithAPI(api route53API, hostedZoneID string) *Route53Client {
	return &Route53Client{api: api, hostedZoneID: hostedZoneID}
}

// IsConfigured returns true if a hosted zone is set and AWS credentials
// resolved.
func (c *Route53Client) IsConfigured() bool {
	return c.hostedZoneID != "" && c.credsErr == nil
}

func (c *Route53Client) configError(op string) error {
	err := errors.New("route53 hosted zone id is required")
	if c.hostedZoneID != "" {
		err = fmt.Errorf("resolving AWS credentials: %w", c.credsErr)
	}
	return &domain.ProviderError{
		Provider: route53Provider,
		Op:       op,
		Kind:     domain.KindConfig,
		Err:      err,
	}
}

// fqdn joins a registrar-relative name with the base domain, Route53 style.
func fqdn(name, baseDomain string) string {
	base := strings.TrimSuffix(baseDomain, ".")
	if name == "" || name == "@" {
		return base + "."
	}
	return strings.TrimSuffix(name, ".") + "." + base + "."
}

// maxTXTString is the longest character-string a TXT record may hold.
const maxTXTString = 255

// txtValue renders a TXT value as space-separated quoted strings of at most
// 255 bytes each, so long DKIM keys fit.
func txtValue(v string) string {
	var parts []string
	for len(v) > maxTXTString {
		parts = append(parts, quoteTXT(v[:maxTXTString]))
		v = v[maxTXTString:]
	}
	parts = append(parts, quoteTXT(v))
	return strings.Join(parts, " ")
}

func quoteTXT(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func recordValue(r domain.DNSRecord) string {
	switch r.Type {
	case domain.RecordTXT:
		return txtValue(r.Value)
	case domain.RecordMX:
		return fmt.Sprintf("%d %s", r.Priority, r.Value)
	default:
		return r.Value
	}
}

// UpsertRecords applies all records in a single UPSERT change batch.
func (c *Route53Client) UpsertRecords(ctx context.Context, baseDomain string, records []domain.DNSRecord) error {
	const op = "upsert records"
	if !c.IsConfigured() {
		return c.configError(op)
	}
	if len(records) == 0 {
		return nil
	}

	changes := make([]r53types.Change, 0, len(records))
	for _, rec := range records {
		changes = append(changes, r53types.Change{
			Action: r53types.ChangeActionUpsert,
			ResourceRecordSet: &r53types.ResourceRecordSet{
				Name: aws.String(fqdn(rec.Name, baseDomain)),
				Type: r53types.RRType(rec.Type),
				TTL:  aws.Int64(int64(rec.TTL)),
				ResourceRecords: []r53types.ResourceRecord{
					{Value: aws.String(recordValue(rec))},
				},
			},
		})
	}

	_, err := c.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(c.hostedZoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: changes,
			Comment: aws.String("tenant sending domain records"),
		},
	})
	if err != nil {
		return classifyAWSError(op, err)
	}
	logger.Info("route53: records upserted", "zone", c.hostedZoneID, "count", len(changes))
	return nil
}

// DeleteRecord looks up the live record set at (type, name) and deletes it.
// Route53 requires the exact set contents for a DELETE change.
func (c *Route53Client) DeleteRecord(ctx context.Context, baseDomain string, t domain.RecordType, name string) (domain.DeleteOutcome, error) {
	const op = "delete record"
	if !c.IsConfigured() {
		return "", c.configError(op)
	}

	target := fqdn(name, baseDomain)
	out, err := c.api.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(c.hostedZoneID),
		StartRecordName: aws.String(target),
		StartRecordType: r53types.RRType(t),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return "", classifyAWSError(op, err)
	}

	var live *r53types.ResourceRecordSet
	for i := range out.ResourceRecordSets {
		set := out.ResourceRecordSets[i]
		if strings.EqualFold(aws.ToString(set.Name), target) && set.Type == r53types.RRType(t) {
			live = &set
			break
		}
	}
	if live == nil {
		return domain.DeleteNotFound, nil
	}

	_, err = c.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(c.hostedZoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: []r53types.Change{{Action: r53types.ChangeActionDelete, ResourceRecordSet: live}},
		},
	})
	if err != nil {
		// Deleted between the lookup and the change.
		var batchErr *r53types.InvalidChangeBatch
		if errors.As(err, &batchErr) && strings.Contains(strings.ToLower(batchErr.ErrorMessage()), "not found") {
			return domain.DeleteNotFound, nil
		}
		return "", classifyAWSError(op, err)
	}
	return domain.DeleteDeleted, nil
}

// credentialFailures are substrings of the SDK's credential-chain errors.
// They are not APIErrors and carry no code.
var credentialFailures = []string{
	"get credentials",
	"failed to retrieve credentials",
	"failed to refresh cached credentials",
	"no valid providers in chain",
}

func isCredentialError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range credentialFailures {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classifyAWSError maps Route53 API error codes onto the provider taxonomy.
func classifyAWSError(op string, err error) error {
	kind := domain.KindTransient
	var apiErr smithy.APIError
	if isCredentialError(err) {
		kind = domain.KindConfig
	} else if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "InvalidClientTokenId",
			"UnrecognizedClientException", "SignatureDoesNotMatch", "ExpiredToken",
			"NoSuchHostedZone":
			kind = domain.KindConfig
		case "InvalidChangeBatch", "InvalidInput", "InvalidArgument":
			kind = domain.KindValidation
		}
	}
	return &domain.ProviderError{Provider: route53Provider, Op: op, Kind: kind, Err: err}
}
