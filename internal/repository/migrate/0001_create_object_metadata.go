package migrate

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	DefaultObjectTableName = "zraid-objects"
	ObjectTableVersion     = "20250801000000_object_catalog_table"
)

// CreateObjectTable creates the catalog table keyed by object name.
type CreateObjectTable struct {
	Table string
}

func (m *CreateObjectTable) Version() string {
	return ObjectTableVersion
}

func (m *CreateObjectTable) TableName() string {
	if m.Table == "" {
		return DefaultObjectTableName
	}
	return m.Table
}

func (m *CreateObjectTable) Up(ctx context.Context, client TableAPI) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("object_name"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("object_name"),
				KeyType:       types.KeyTypeHash, // Partition Key
			},
		},
		TableName:   aws.String(m.TableName()),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{
				Key:   aws.String("Purpose"),
				Value: aws.String("ErasureCodingCatalog"),
			},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(m.TableName()),
	}, 5*time.Minute)
}

func (m *CreateObjectTable) Down(ctx context.Context, client TableAPI) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(m.TableName()),
	})
	return err
}
