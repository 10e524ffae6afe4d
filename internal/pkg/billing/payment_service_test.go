package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/identity"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paymentTestSecret = "whsec_payment_test"

func signPayment(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(paymentTestSecret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutPayload(eventID, identityRef, packageID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"payment_status": %q,
			"metadata": {"identity_ref": %q, "package_id": %q}
		}}
	}`, eventID, paymentStatus, identityRef, packageID))
}

func newPaymentFixture(t *testing.T) (*PaymentService, *repository.Repositories, *models.Account) {
	t.Helper()

	repos := repository.NewMemoryRepositories()
	account := &models.Account{IdentityID: "usr_1", Email: "ada@example.com"}
	require.NoError(t, repos.Account.Create(account))

	svc := NewPaymentService(repos, nil, paymentTestSecret, 5, false)
	return svc, repos, account
}

func TestPaymentCheckoutCreditsPackage(t *testing.T) {
	svc, repos, account := newPaymentFixture(t)
	payload := checkoutPayload("evt_1", "usr_1", "starter", "paid")

	outcome, err := svc.HandleEvent(context.Background(), payload, signPayment(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	updated, err := repos.Account.GetByID(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), updated.Balance)

	txn, err := repos.Transaction.FindByExternalPaymentRef("evt_1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionKindPurchase, txn.Kind)
	assert.Equal(t, "starter", txn.PackageID)
}

func TestPaymentRedeliveryCreditsOnce(t *testing.T) {
	svc, repos, account := newPaymentFixture(t)
	payload := checkoutPayload("evt_1", "usr_1", "studio", "paid")
	header := signPayment(payload)

	outcome, err := svc.HandleEvent(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	for i := 0; i < 3; i++ {
		outcome, err = svc.HandleEvent(context.Background(), payload, header)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
	}

	updated, err := repos.Account.GetByID(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), updated.Balance, "redeliveries must not credit again")

	sum, err := repos.Transaction.SumByAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), sum)
}

func TestPaymentInvalidSignature(t *testing.T) {
	svc, repos, account := newPaymentFixture(t)
	payload := checkoutPayload("evt_1", "usr_1", "starter", "paid")

	_, err := svc.HandleEvent(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	updated, err := repos.Account.GetByID(account.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.Balance)
}

func TestPaymentMalformedPayload(t *testing.T) {
	svc, _, _ := newPaymentFixture(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"payment_status":"paid","metadata":{}}}}`)

	_, err := svc.HandleEvent(context.Background(), payload, signPayment(payload))
	assert.ErrorIs(t, err, payments.ErrMalformedEvent)
}

func TestPaymentUnknownPackageRejected(t *testing.T) {
	svc, repos, account := newPaymentFixture(t)
	payload := checkoutPayload("evt_1", "usr_1", "platinum", "paid")

	_, err := svc.HandleEvent(context.Background(), payload, signPayment(payload))
	assert.ErrorIs(t, err, payments.ErrMalformedEvent)

	updated, err := repos.Account.GetByID(account.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.Balance)
}

func TestPaymentUnpaidSessionAcknowledged(t *testing.T) {
	svc, repos, account := newPaymentFixture(t)
	payload := checkoutPayload("evt_1", "usr_1", "starter", "unpaid")

	outcome, err := svc.HandleEvent(context.Background(), payload, signPayment(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	updated, err := repos.Account.GetByID(account.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.Balance)

	// A redelivery of the acknowledged event short-circuits on the claim.
	outcome, err = svc.HandleEvent(context.Background(), payload, signPayment(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestPaymentIgnoredEventKindAcknowledged(t *testing.T) {
	svc, _, _ := newPaymentFixture(t)
	payload := []byte(`{"id":"evt_noise","type":"payment_intent.succeeded"}`)

	outcome, err := svc.HandleEvent(context.Background(), payload, signPayment(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestPaymentBeforeIdentityRetriesCleanly(t *testing.T) {
	// The checkout event for a brand-new user arrives before the identity
	// webhook has provisioned the account. The delivery fails retryably and
	// leaves no claim, so the redelivery after provisioning credits exactly
	// once.
	repos := repository.NewMemoryRepositories()
	svc := NewPaymentService(repos, nil, paymentTestSecret, 5, false)
	payload := checkoutPayload("evt_race", "usr_new", "starter", "paid")
	header := signPayment(payload)

	_, err := svc.HandleEvent(context.Background(), payload, header)
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)

	// Identity webhook lands, account now exists.
	account := &models.Account{IdentityID: "usr_new", Email: "new@example.com"}
	require.NoError(t, repos.Account.Create(account))

	outcome, err := svc.HandleEvent(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome, "claim must have rolled back with the failed attempt")

	updated, err := repos.Account.GetByID(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), updated.Balance)
}

func TestPaymentLazyCreateResolvesViaProvider(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	fetcher := &stubFetcher{user: &identity.User{ID: "usr_dev", Email: "dev@example.com", Name: "Dev User"}}
	svc := NewPaymentService(repos, fetcher, paymentTestSecret, 5, true)

	payload := checkoutPayload("evt_dev", "usr_dev", "starter", "paid")
	outcome, err := svc.HandleEvent(context.Background(), payload, signPayment(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	account, err := repos.Account.GetByIdentityID("usr_dev")
	require.NoError(t, err)
	assert.Equal(t, int64(35), account.Balance, "starter bonus plus purchased credits")
}

type stubFetcher struct {
	user *identity.User
}

func (f *stubFetcher) GetUser(ctx context.Context, userID string) (*identity.User, error) {
	if f.user != nil && f.user.ID == userID {
		return f.user, nil
	}
	return nil, identity.ErrUserNotFound
}
