package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/mediapackage"
)

// mediaPackageAPI is the subset of the MediaPackage client teardown needs.
type mediaPackageAPI interface {
	DescribeOriginEndpointWithContext(aws.Context, *mediapackage.DescribeOriginEndpointInput, ...request.Option) (*mediapackage.DescribeOriginEndpointOutput, error)
	DeleteOriginEndpointWithContext(aws.Context, *mediapackage.DeleteOriginEndpointInput, ...request.Option) (*mediapackage.DeleteOriginEndpointOutput, error)
	DeleteChannelWithContext(aws.Context, *mediapackage.DeleteChannelInput, ...request.Option) (*mediapackage.DeleteChannelOutput, error)
}

// MediaPackageService removes the live-packaging infrastructure once a
// recording has been harvested and the endpoint serves no purpose anymore.
type MediaPackageService struct {
	client mediaPackageAPI
}

func NewMediaPackageService(sess *session.Session) *MediaPackageService {
	return &MediaPackageService{client: mediapackage.New(sess)}
}

// TeardownLiveChannel looks up the origin endpoint, deletes it, then deletes
// its parent channel.
func (m *MediaPackageService) TeardownLiveChannel(ctx context.Context, originEndpointID string) error {
	endpoint, err := m.client.DescribeOriginEndpointWithContext(ctx, &mediapackage.DescribeOriginEndpointInput{
		Id: aws.String(originEndpointID),
	})
	if err != nil {
		return fmt.Errorf("failed to describe origin endpoint %s: %w", originEndpointID, err)
	}

	if _, err := m.client.DeleteOriginEndpointWithContext(ctx, &mediapackage.DeleteOriginEndpointInput{
		Id: aws.String(originEndpointID),
	}); err != nil {
		return fmt.Errorf("failed to delete origin endpoint %s: %w", originEndpointID, err)
	}

	if _, err := m.client.DeleteChannelWithContext(ctx, &mediapackage.DeleteChannelInput{
		Id: endpoint.ChannelId,
	}); err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", aws.StringValue(endpoint.ChannelId), err)
	}

	return nil
}
