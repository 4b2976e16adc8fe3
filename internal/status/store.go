package status

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"
)

// Store is the durable per-task record keeper described in §4.1. All
// mutations are serialised per task_id; readers observe a consistent
// snapshot, never a torn read of progress+state+warnings.
type Store interface {
	Create(ctx context.Context, taskID string, req Request) (TaskStatus, error)
	Update(ctx context.Context, taskID string, newState State, description string, progress int) error
	SetArtifact(ctx context.Context, taskID string, set func(*ArtifactFlags)) error
	AppendWarning(ctx context.Context, taskID, message string) error
	SetError(ctx context.Context, taskID, title, detail string) error
	SetEpisode(ctx context.Context, taskID string, episode PodcastEpisode) error
	Get(ctx context.Context, taskID string) (*TaskStatus, error)
	List(ctx context.Context, limit, offset int) ([]TaskStatus, error)
	Delete(ctx context.Context, taskID string) error
}

// NewTaskID generates a time-sortable ULID task identifier.
func NewTaskID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	return id.String(), nil
}

// ErrNotFound is returned by Get/Delete when no record exists for the id.
var ErrNotFound = errValidation{"task not found"}

// ErrTerminal is returned when a mutation targets a task already in a
// terminal state.
var ErrTerminal = errValidation{"task is already in a terminal state"}

// item is the DynamoDB single-table record for a task: PK/SK identify the
// record, GSI1PK/GSI1SK support the newest-first task listing query.
type item struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	TaskID             string `dynamodbav:"taskId"`
	Status             string `dynamodbav:"status"`
	StatusDescription  string `dynamodbav:"statusDescription"`
	ProgressPercentage int    `dynamodbav:"progressPercentage"`
	RequestJSON        string `dynamodbav:"requestJson"`
	CreatedAt          string `dynamodbav:"createdAt"`
	LastUpdatedAt      string `dynamodbav:"lastUpdatedAt"`
	ArtifactsJSON       string `dynamodbav:"artifactsJson"`
	WarningsJSON        string `dynamodbav:"warningsJson"`
	ErrorJSON           string `dynamodbav:"errorJson,omitempty"`
	EpisodeJSON         string `dynamodbav:"episodeJson,omitempty"`
}

func (it item) toTaskStatus() (TaskStatus, error) {
	ts := TaskStatus{
		TaskID:             it.TaskID,
		Status:             State(it.Status),
		StatusDescription:  it.StatusDescription,
		ProgressPercentage: it.ProgressPercentage,
	}
	var err error
	if ts.CreatedAt, err = time.Parse(time.RFC3339Nano, it.CreatedAt); err != nil {
		return ts, fmt.Errorf("parse createdAt: %w", err)
	}
	if ts.LastUpdatedAt, err = time.Parse(time.RFC3339Nano, it.LastUpdatedAt); err != nil {
		return ts, fmt.Errorf("parse lastUpdatedAt: %w", err)
	}
	if err := json.Unmarshal([]byte(it.RequestJSON), &ts.RequestData); err != nil {
		return ts, fmt.Errorf("unmarshal request: %w", err)
	}
	if it.ArtifactsJSON != "" {
		if err := json.Unmarshal([]byte(it.ArtifactsJSON), &ts.Artifacts); err != nil {
			return ts, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}
	if it.WarningsJSON != "" {
		if err := json.Unmarshal([]byte(it.WarningsJSON), &ts.Warnings); err != nil {
			return ts, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	if it.ErrorJSON != "" {
		var e ErrorDetails
		if err := json.Unmarshal([]byte(it.ErrorJSON), &e); err != nil {
			return ts, fmt.Errorf("unmarshal error_details: %w", err)
		}
		ts.ErrorDetails = &e
	}
	if it.EpisodeJSON != "" {
		var ep PodcastEpisode
		if err := json.Unmarshal([]byte(it.EpisodeJSON), &ep); err != nil {
			return ts, fmt.Errorf("unmarshal episode: %w", err)
		}
		ts.ResultEpisode = &ep
	}
	return ts, nil
}

// DynamoStore is the production Store backed by DynamoDB.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore constructs a DynamoDB-backed Store.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) key(taskID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "TASK#" + taskID},
		"SK": &types.AttributeValueMemberS{Value: "STATUS"},
	}
}

func (s *DynamoStore) Create(ctx context.Context, taskID string, req Request) (TaskStatus, error) {
	now := time.Now().UTC()
	ts := TaskStatus{
		TaskID:             taskID,
		Status:             StateQueued,
		StatusDescription:  "queued",
		ProgressPercentage: 0,
		RequestData:        req,
		CreatedAt:          now,
		LastUpdatedAt:      now,
		Warnings:           []string{},
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("marshal request: %w", err)
	}
	it := item{
		PK:                 "TASK#" + taskID,
		SK:                 "STATUS",
		GSI1PK:             "TASKS",
		GSI1SK:             now.Format(time.RFC3339Nano) + "#" + taskID,
		TaskID:             taskID,
		Status:             string(StateQueued),
		StatusDescription:  "queued",
		ProgressPercentage: 0,
		RequestJSON:        string(reqJSON),
		CreatedAt:          now.Format(time.RFC3339Nano),
		LastUpdatedAt:      now.Format(time.RFC3339Nano),
		ArtifactsJSON:      "{}",
		WarningsJSON:       "[]",
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("marshal task item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return TaskStatus{}, fmt.Errorf("put task item: %w", err)
	}
	return ts, nil
}

// withCurrent loads the current item, applies a mutator that may return an
// error to abort (e.g. terminal-state rejection), and writes the item back.
// The write is an unconditional PutItem with no per-task lock, so two
// writers updating the same task at once can overwrite each other's change.
func (s *DynamoStore) withCurrent(ctx context.Context, taskID string, mutate func(*item) error) error {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       s.key(taskID),
	})
	if err != nil {
		return fmt.Errorf("get task item: %w", err)
	}
	if result.Item == nil {
		return ErrNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return fmt.Errorf("unmarshal task item: %w", err)
	}
	if err := mutate(&it); err != nil {
		return err
	}
	it.LastUpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshal task item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put task item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, taskID string, newState State, description string, progress int) error {
	return s.withCurrent(ctx, taskID, func(it *item) error {
		if !CanTransition(State(it.Status), newState) {
			return fmt.Errorf("%w: %s -> %s", ErrTerminal, it.Status, newState)
		}
		it.Status = string(newState)
		it.StatusDescription = description
		it.ProgressPercentage = progress
		return nil
	})
}

func (s *DynamoStore) SetArtifact(ctx context.Context, taskID string, set func(*ArtifactFlags)) error {
	return s.withCurrent(ctx, taskID, func(it *item) error {
		var flags ArtifactFlags
		if it.ArtifactsJSON != "" {
			if err := json.Unmarshal([]byte(it.ArtifactsJSON), &flags); err != nil {
				return fmt.Errorf("unmarshal artifacts: %w", err)
			}
		}
		set(&flags)
		b, err := json.Marshal(flags)
		if err != nil {
			return fmt.Errorf("marshal artifacts: %w", err)
		}
		it.ArtifactsJSON = string(b)
		return nil
	})
}

func (s *DynamoStore) AppendWarning(ctx context.Context, taskID, message string) error {
	return s.withCurrent(ctx, taskID, func(it *item) error {
		var warnings []string
		if it.WarningsJSON != "" {
			if err := json.Unmarshal([]byte(it.WarningsJSON), &warnings); err != nil {
				return fmt.Errorf("unmarshal warnings: %w", err)
			}
		}
		warnings = append(warnings, message)
		b, err := json.Marshal(warnings)
		if err != nil {
			return fmt.Errorf("marshal warnings: %w", err)
		}
		it.WarningsJSON = string(b)
		return nil
	})
}

func (s *DynamoStore) SetError(ctx context.Context, taskID, title, detail string) error {
	return s.withCurrent(ctx, taskID, func(it *item) error {
		if State(it.Status).IsTerminal() {
			return nil
		}
		b, err := json.Marshal(ErrorDetails{Title: title, Detail: detail})
		if err != nil {
			return fmt.Errorf("marshal error_details: %w", err)
		}
		it.ErrorJSON = string(b)
		it.Status = string(StateFailed)
		it.StatusDescription = title
		return nil
	})
}

func (s *DynamoStore) SetEpisode(ctx context.Context, taskID string, episode PodcastEpisode) error {
	return s.withCurrent(ctx, taskID, func(it *item) error {
		if it.EpisodeJSON != "" {
			return fmt.Errorf("episode already set for task %s", taskID)
		}
		b, err := json.Marshal(episode)
		if err != nil {
			return fmt.Errorf("marshal episode: %w", err)
		}
		it.EpisodeJSON = string(b)
		return nil
	})
}

func (s *DynamoStore) Get(ctx context.Context, taskID string) (*TaskStatus, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       s.key(taskID),
	})
	if err != nil {
		return nil, fmt.Errorf("get task item: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal task item: %w", err)
	}
	ts, err := it.toTaskStatus()
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *DynamoStore) List(ctx context.Context, limit, offset int) ([]TaskStatus, error) {
	if limit <= 0 {
		limit = 20
	}
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "TASKS"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit + offset)),
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var items []item
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal task list: %w", err)
	}
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]TaskStatus, 0, len(items))
	for _, it := range items {
		ts, err := it.toTaskStatus()
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, nil
}

func (s *DynamoStore) Delete(ctx context.Context, taskID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(taskID),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ReturnValues:        types.ReturnValueNone,
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return ErrNotFound
		}
		return fmt.Errorf("delete task item: %w", err)
	}
	return nil
}

// MemStore is an in-process Store used by default and by tests. It honours
// the same contract as DynamoStore, including terminal-state write-once
// enforcement; all mutations are serialised by a single store-wide mutex.
type MemStore struct {
	mu    sync.RWMutex
	tasks map[string]*TaskStatus
	order []string
}

// NewMemStore constructs an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*TaskStatus)}
}

func (s *MemStore) Create(ctx context.Context, taskID string, req Request) (TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[taskID]; exists {
		return TaskStatus{}, fmt.Errorf("task %s already exists", taskID)
	}
	now := time.Now().UTC()
	ts := &TaskStatus{
		TaskID:            taskID,
		Status:            StateQueued,
		StatusDescription: "queued",
		RequestData:       req,
		CreatedAt:         now,
		LastUpdatedAt:     now,
		Warnings:          []string{},
	}
	s.tasks[taskID] = ts
	s.order = append(s.order, taskID)
	return *ts, nil
}

func (s *MemStore) mutate(taskID string, f func(*TaskStatus) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if err := f(ts); err != nil {
		return err
	}
	ts.LastUpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) Update(ctx context.Context, taskID string, newState State, description string, progress int) error {
	return s.mutate(taskID, func(ts *TaskStatus) error {
		if !CanTransition(ts.Status, newState) {
			return fmt.Errorf("%w: %s -> %s", ErrTerminal, ts.Status, newState)
		}
		ts.Status = newState
		ts.StatusDescription = description
		ts.ProgressPercentage = progress
		return nil
	})
}

func (s *MemStore) SetArtifact(ctx context.Context, taskID string, set func(*ArtifactFlags)) error {
	return s.mutate(taskID, func(ts *TaskStatus) error {
		set(&ts.Artifacts)
		return nil
	})
}

func (s *MemStore) AppendWarning(ctx context.Context, taskID, message string) error {
	return s.mutate(taskID, func(ts *TaskStatus) error {
		ts.Warnings = append(ts.Warnings, message)
		return nil
	})
}

func (s *MemStore) SetError(ctx context.Context, taskID, title, detail string) error {
	return s.mutate(taskID, func(ts *TaskStatus) error {
		if ts.Status.IsTerminal() {
			return nil
		}
		ts.ErrorDetails = &ErrorDetails{Title: title, Detail: detail}
		ts.Status = StateFailed
		ts.StatusDescription = title
		return nil
	})
}

func (s *MemStore) SetEpisode(ctx context.Context, taskID string, episode PodcastEpisode) error {
	return s.mutate(taskID, func(ts *TaskStatus) error {
		if ts.ResultEpisode != nil {
			return fmt.Errorf("episode already set for task %s", taskID)
		}
		ts.ResultEpisode = &episode
		return nil
	})
}

func (s *MemStore) Get(ctx context.Context, taskID string) (*TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ts
	cp.Warnings = append([]string(nil), ts.Warnings...)
	return &cp, nil
}

func (s *MemStore) List(ctx context.Context, limit, offset int) ([]TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	ids := s.order
	// newest first, mirroring the DynamoDB GSI1 descending scan.
	out := make([]TaskStatus, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit+offset; i-- {
		out = append(out, *s.tasks[ids[i]])
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, taskID)
	for i, id := range s.order {
		if id == taskID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

var _ Store = (*DynamoStore)(nil)
var _ Store = (*MemStore)(nil)
