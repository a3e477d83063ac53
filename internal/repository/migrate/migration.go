// Package migrate holds the DynamoDB table migrations of the catalog.
package migrate

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// TableAPI is the subset of the DynamoDB client used by migrations.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Migration creates or drops one table.
type Migration interface {
	Version() string
	TableName() string
	Up(ctx context.Context, client TableAPI) error
	Down(ctx context.Context, client TableAPI) error
}

// All returns the migrations in apply order.
func All(objectTable string) []Migration {
	return []Migration{
		&CreateObjectTable{Table: objectTable},
	}
}
