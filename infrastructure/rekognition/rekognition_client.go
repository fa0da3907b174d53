package rekognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"facemanager/domain/services"
	"facemanager/pkg/logger"
)

// Client wraps AWS Rekognition face search behind the RecognitionEngine port.
type Client struct {
	api                 *rekognition.Client
	similarityThreshold float64 // 0-1, converted to Rekognition's 0-100
	maxMatches          int
}

type ClientConfig struct {
	Region              string
	EndpointURL         string // optional override for local stacks
	SimilarityThreshold float64
	MaxMatches          int
}

func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var opts []func(*rekognition.Options)
	if cfg.EndpointURL != "" {
		opts = append(opts, func(o *rekognition.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return &Client{
		api:                 rekognition.NewFromConfig(awsCfg, opts...),
		similarityThreshold: cfg.SimilarityThreshold,
		maxMatches:          cfg.MaxMatches,
	}, nil
}

// SearchMatches looks up faces similar to faceID in the user's collection.
// A missing collection or face means nothing was ever indexed there, so it
// reports no matches instead of an error.
func (c *Client) SearchMatches(ctx context.Context, collectionID, faceID string) ([]services.FaceMatch, error) {
	input := &rekognition.SearchFacesInput{
		CollectionId:       aws.String(collectionID),
		FaceId:             aws.String(faceID),
		MaxFaces:           aws.Int32(int32(c.maxMatches)),
		FaceMatchThreshold: aws.Float32(float32(c.similarityThreshold * 100)),
	}

	output, err := c.api.SearchFaces(ctx, input)
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			logger.Probe("collection_missing", "Rekognition collection or face not indexed", map[string]interface{}{
				"collection_id": collectionID,
				"face_id":       faceID,
			})
			return nil, nil
		}
		var invalidParam *types.InvalidParameterException
		if errors.As(err, &invalidParam) {
			return nil, nil
		}
		return nil, fmt.Errorf("rekognition search faces: %w", err)
	}

	matches := make([]services.FaceMatch, 0, len(output.FaceMatches))
	for _, match := range output.FaceMatches {
		if match.Face == nil || match.Face.FaceId == nil {
			continue
		}
		similarity := 0.0
		if match.Similarity != nil {
			similarity = float64(*match.Similarity) / 100.0
		}
		matches = append(matches, services.FaceMatch{
			FaceID:     *match.Face.FaceId,
			Similarity: similarity,
		})
	}
	return matches, nil
}
