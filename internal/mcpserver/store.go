package mcpserver

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Store wraps the single-table DynamoDB client for the auth/usage-accounting
// concerns defined in auth.go (API keys, users, cost tracking). A task's
// lifecycle record no longer lives here: internal/status.DynamoStore owns
// it, on the same table, keyed "TASK#"+id rather than "PODCAST#"+id.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// NewStore wraps a DynamoDB client bound to tableName for auth/usage use.
func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}
