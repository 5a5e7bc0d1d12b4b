// Package cloudwatch publishes audit session summaries as CloudWatch metrics.
package cloudwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/syncshop/catalog-audit/internal/domain"
)

// API is the subset of the CloudWatch client used by this package.
type API interface {
	PutMetricData(ctx context.Context, params *cw.PutMetricDataInput, optFns ...func(*cw.Options)) (*cw.PutMetricDataOutput, error)
}

// maxDatumsPerCall is the PutMetricData per-request datum limit.
const maxDatumsPerCall = 1000

// Publisher writes summary metrics under one namespace.
type Publisher struct {
	api       API
	namespace string
	now       func() time.Time
}

// New creates a Publisher from an AWS config.
func New(cfg aws.Config, namespace string) *Publisher {
	return NewFromAPI(cw.NewFromConfig(cfg), namespace)
}

// NewFromAPI creates a Publisher from an explicit API implementation (for testing).
func NewFromAPI(api API, namespace string) *Publisher {
	return &Publisher{api: api, namespace: namespace, now: time.Now}
}

// Datums builds the metric data for one session summary. Every datum carries
// FeedFile and Mode dimensions; per-kind counts add a Kind dimension.
func (p *Publisher) Datums(s domain.Summary) []cwtypes.MetricDatum {
	ts := aws.Time(p.now().UTC())
	base := []cwtypes.Dimension{
		{Name: aws.String("FeedFile"), Value: aws.String(s.FeedFile)},
		{Name: aws.String("Mode"), Value: aws.String(string(s.Mode))},
	}
	datum := func(name string, v int, extra ...cwtypes.Dimension) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: append(append([]cwtypes.Dimension(nil), base...), extra...),
			Timestamp:  ts,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(v)),
		}
	}

	out := []cwtypes.MetricDatum{
		datum("SourceRows", s.SourceRows),
		datum("MatchedRows", s.Matched),
		datum("Discrepancies", s.Discrepancies),
		datum("MissingProducts", s.Missing),
		datum("ExcessiveMedia", s.ExcessiveMedia),
		datum("Warnings", s.Warnings),
	}
	for _, k := range domain.AllKinds() {
		if n := s.ByKind[k]; n > 0 {
			out = append(out, datum("DiscrepanciesByKind", n, cwtypes.Dimension{Name: aws.String("Kind"), Value: aws.String(string(k))}))
		}
	}
	return out
}

// PublishSummary sends the summary metrics, splitting at the per-call limit.
func (p *Publisher) PublishSummary(ctx context.Context, s domain.Summary) error {
	datums := p.Datums(s)
	for start := 0; start < len(datums); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(datums))
		_, err := p.api.PutMetricData(ctx, &cw.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: datums[start:end],
		})
		if err != nil {
			return fmt.Errorf("cloudwatch: put metric data: %w", err)
		}
	}
	return nil
}
