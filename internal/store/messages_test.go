package store

import (
	"context"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A conversation longer than the limit keeps its newest messages, returned
// oldest-first for the reconciling client and the prompt builder.
func TestListByConversationWindowKeepsNewest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := strings.Split(messageColumns, ", ")
	rows := sqlmock.NewRows(cols).
		AddRow("m-3", "conv-1", "user", nil, nil, nil, "newest", "", now, now).
		AddRow("m-2", "conv-1", "agent", nil, nil, nil, "middle", "", now.Add(-time.Minute), now)

	mock.ExpectQuery("ORDER BY created_at DESC, id DESC").
		WithArgs("conv-1", 2).
		WillReturnRows(rows)

	st := &MessageStore{db: db}
	got, err := st.ListByConversation(context.Background(), "conv-1", 2)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "m-2", got[0].ID)
	assert.Equal(t, "m-3", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
