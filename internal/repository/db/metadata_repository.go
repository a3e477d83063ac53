package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
)

// MetadataRepository manages DynamoDB interactions for ObjectMetadata.
type MetadataRepository struct {
	client    DynamoDBAPI
	tableName string
}

// NewMetadataRepository initializes a new MetadataRepository.
func NewMetadataRepository(client DynamoDBAPI, tableName string) MetadataRepository {
	return MetadataRepository{
		client:    client,
		tableName: tableName,
	}
}

func objectKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"object_name": &types.AttributeValueMemberS{Value: name},
	}
}

// CreateMetadata stores object metadata in DynamoDB, replacing any previous
// record for the same name.
func (repo *MetadataRepository) CreateMetadata(ctx context.Context, metadata domain.ObjectMetadata) (domain.ObjectMetadata, error) {
	metadataMap, err := attributevalue.MarshalMap(metadata)
	if err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(repo.tableName),
		Item:      metadataMap,
	}

	if _, err := repo.client.PutItem(ctx, input); err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to create metadata: %w", err)
	}

	return metadata, nil
}

// GetMetadata retrieves object metadata by object name.
func (repo *MetadataRepository) GetMetadata(ctx context.Context, name string) (domain.ObjectMetadata, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(repo.tableName),
		Key:       objectKey(name),
	}

	result, err := repo.client.GetItem(ctx, input)
	if err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to get metadata: %w", err)
	}

	if result.Item == nil {
		return domain.ObjectMetadata{}, zerrors.NotFoundError("object " + name)
	}

	var metadata domain.ObjectMetadata
	if err := attributevalue.UnmarshalMap(result.Item, &metadata); err != nil {
		return domain.ObjectMetadata{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// ListMetadata scans the whole table and returns the records sorted by name.
func (repo *MetadataRepository) ListMetadata(ctx context.Context) ([]domain.ObjectMetadata, error) {
	paginator := dynamodb.NewScanPaginator(repo.client, &dynamodb.ScanInput{
		TableName: aws.String(repo.tableName),
	})

	var metadataList []domain.ObjectMetadata
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		for _, item := range page.Items {
			var metadata domain.ObjectMetadata
			if err := attributevalue.UnmarshalMap(item, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
			metadataList = append(metadataList, metadata)
		}
	}

	sort.Slice(metadataList, func(i, j int) bool { return metadataList[i].Name < metadataList[j].Name })
	return metadataList, nil
}

// DeleteMetadata removes object metadata by name.
func (repo *MetadataRepository) DeleteMetadata(ctx context.Context, name string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(repo.tableName),
		Key:       objectKey(name),
	}

	if _, err := repo.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}
