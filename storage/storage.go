package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"crm-workflow/domain"
)

const (
	EdmInt64    = "Edm.Int64"
	EdmDateTime = "Edm.DateTime"
)

// ActionEntity is one row of the action log table.
type ActionEntity struct {
	PartitionKey   string `json:"PartitionKey"`
	RowKey         string `json:"RowKey"`
	RunID          string `json:"RunId"`
	ContactID      int64  `json:"ContactId,string"`
	ContactIDType  string `json:"ContactId@odata.type"`
	DealID         int64  `json:"DealId,string"`
	DealIDType     string `json:"DealId@odata.type"`
	OwnerID        int64  `json:"OwnerId,string"`
	OwnerIDType    string `json:"OwnerId@odata.type"`
	Name           string `json:"Name,omitempty"`
	ActionTime     string `json:"ActionTime"`
	ActionTimeType string `json:"ActionTime@odata.type"`
}

type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
}

// ActionLog writes workflow actions to Azure Table Storage.
type ActionLog struct {
	table tableClient
	newID func() string
}

// New creates an ActionLog from a storage connection string, creating the
// table when it does not exist yet.
func New(ctx context.Context, connStr, table string) (*ActionLog, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, err
	}
	if _, err := svc.CreateTable(ctx, table, nil); err != nil {
		var respErr *azcore.ResponseError
		if !errors.As(err, &respErr) || respErr.ErrorCode != string(aztables.TableAlreadyExists) {
			return nil, fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return newActionLog(svc.NewClient(table)), nil
}

func newActionLog(t tableClient) *ActionLog {
	return &ActionLog{table: t, newID: uuid.NewString}
}

// Record inserts a new row for the action.
func (l *ActionLog) Record(ctx context.Context, a domain.Action) error {
	ent := ActionEntity{
		PartitionKey:   a.Kind,
		RowKey:         l.newID(),
		RunID:          a.RunID,
		ContactID:      a.ContactID,
		ContactIDType:  EdmInt64,
		DealID:         a.DealID,
		DealIDType:     EdmInt64,
		OwnerID:        a.OwnerID,
		OwnerIDType:    EdmInt64,
		Name:           a.Name,
		ActionTime:     a.Time.UTC().Format("2006-01-02T15:04:05.0000000Z"),
		ActionTimeType: EdmDateTime,
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = l.table.AddEntity(ctx, payload, nil)
	}
	return err
}
