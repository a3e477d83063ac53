package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zraid/internal/repository/migrate"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the catalog and
// its migrations.
type DynamoDBAPI interface {
	migrate.TableAPI
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type DynamoDb struct {
	Client     DynamoDBAPI
	migrations []migrate.Migration
}

func NewDatabase(awsConfig aws.Config, tableName string) (*DynamoDb, error) {
	client := dynamodb.NewFromConfig(awsConfig)
	if client == nil {
		return nil, errors.New("failed to create DynamoDB client")
	}
	return NewDatabaseWithClient(client, tableName), nil
}

// NewDatabaseWithClient wraps an existing client.
func NewDatabaseWithClient(client DynamoDBAPI, tableName string) *DynamoDb {
	return &DynamoDb{
		Client:     client,
		migrations: migrate.All(tableName),
	}
}

func (d *DynamoDb) tableExists(ctx context.Context, name string) (bool, error) {
	_, err := d.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err == nil {
		return true, nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}

// MigrateDb applies every migration whose table does not exist yet.
func (d *DynamoDb) MigrateDb(ctx context.Context) error {
	for _, m := range d.migrations {
		exists, err := d.tableExists(ctx, m.TableName())
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %w", m.TableName(), err)
		}
		if exists {
			log.Debugf("Migration %s already applied", m.Version())
			continue
		}

		log.Infof("Applying migration %s", m.Version())
		if err := m.Up(ctx, d.Client); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Version(), err)
		}
	}
	return nil
}

// MigrateDown drops the migrated tables in reverse order.
func (d *DynamoDb) MigrateDown(ctx context.Context) error {
	for i := len(d.migrations) - 1; i >= 0; i-- {
		m := d.migrations[i]
		exists, err := d.tableExists(ctx, m.TableName())
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %w", m.TableName(), err)
		}
		if !exists {
			continue
		}

		log.Infof("Rolling back migration %s", m.Version())
		if err := m.Down(ctx, d.Client); err != nil {
			return fmt.Errorf("rollback of %s failed: %w", m.Version(), err)
		}
	}
	return nil
}
