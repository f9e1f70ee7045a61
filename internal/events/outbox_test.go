package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestOutboxPublisherInsertsEnvelope(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lead := sampleLead(t)
	evt := NewLeadCreated(lead)

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), lead.CompanyID, string(ChannelLeadCreated), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	pub := NewOutboxPublisher(newOutboxStoreWithExec(mock))
	require.NoError(t, pub.Publish(context.Background(), evt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxScopesDebounceTimerByCompany(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	companyID := uuid.NewString()
	evt := NewDebounceTimer(companyID+"|inst-1|+5511987654321", 4, time.Now().UTC())

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), companyID, string(ChannelDebounceTimer), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	pub := NewOutboxPublisher(newOutboxStoreWithExec(mock))
	require.NoError(t, pub.Publish(context.Background(), evt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPublisherRejectsInvalid(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lead := sampleLead(t)
	lead.Phone = ""
	pub := NewOutboxPublisher(newOutboxStoreWithExec(mock))
	require.Error(t, pub.Publish(context.Background(), NewLeadCreated(lead)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxMarkDelivered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	env, err := Wrap(NewLeadCreated(sampleLead(t)))
	require.NoError(t, err)

	mock.ExpectExec("UPDATE outbox").
		WithArgs(env.EventID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := newOutboxStoreWithExec(mock)
	ok, err := store.MarkDelivered(context.Background(), env.EventID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
