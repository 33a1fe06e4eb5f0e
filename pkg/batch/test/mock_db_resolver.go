package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	dbadapter "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
)

var _ dbadapter.DBConnectionResolver = (*MockDBConnectionResolver)(nil)

// MockDBConnectionResolver resolves datasource names to scripted connections.
type MockDBConnectionResolver struct {
	mock.Mock
}

func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	args := m.Called(ctx, name)
	conn, _ := args.Get(0).(dbadapter.DBConnection)
	return conn, args.Error(1)
}
