package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// End-to-end reconciliation flow against real MySQL + redis:
// enter workflow -> reconcile quantities -> finalize -> rejection case seeding
// -> disposition resolution -> vendor contact. Also covers the version guard
// and the seeding idempotency on re-save.
func TestAcceptanceWorkflowEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "procurement_test")
	// Outbox rows stay PENDING; the dispatcher is not running in tests.
	t.Setenv("OUTBOX_DISPATCHER_DISABLED", "true")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	businessID := uuid.NewString()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{
		Name:  "Golden Harvest Trading",
		Email: "orders@goldenharvest.example",
		Phone: "09212345678",
	})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	// Shipments are owned by the delivery collaborator; seed one directly.
	now := time.Now().UTC()
	shipment := models.Shipment{
		BusinessId:     businessID,
		SupplierId:     supplier.ID,
		ShipmentNumber: "SHP-IT-0001",
		ShipmentDate:   now.AddDate(0, 0, -1),
		DeliveredAt:    &now,
		Details: []*models.ShipmentDetail{
			{Name: "Jasmine Rice 25kg", Sku: "RICE-25", DeliveredQty: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(52000)},
			{Name: "Peanut Oil 5L", Sku: "OIL-5", DeliveredQty: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(31000)},
			{Name: "Dried Chili 1kg", Sku: "CHL-1", DeliveredQty: decimal.NewFromInt(8), UnitPrice: decimal.NewFromInt(9500)},
		},
	}
	if err := db.WithContext(ctx).Create(&shipment).Error; err != nil {
		t.Fatalf("seed shipment: %v", err)
	}

	// 1) Enter the workflow.
	record, err := models.CreateAcceptance(ctx, shipment.ID)
	if err != nil {
		t.Fatalf("CreateAcceptance: %v", err)
	}
	if len(record.Items) != 3 {
		t.Fatalf("expected 3 acceptance items, got %d", len(record.Items))
	}
	if record.CurrentStatus != models.AcceptanceStatusPending {
		t.Fatalf("fresh record status = %q, want Pending", record.CurrentStatus)
	}
	if !strings.HasPrefix(record.AcceptanceNumber, "ACN-") {
		t.Fatalf("acceptance number %q missing ACN prefix", record.AcceptanceNumber)
	}
	if record.Items[0].Name != "Jasmine Rice 25kg" {
		t.Fatalf("items not seeded in line order: first item %q", record.Items[0].Name)
	}

	// One record per shipment.
	if _, err := models.CreateAcceptance(ctx, shipment.ID); err == nil {
		t.Fatalf("duplicate CreateAcceptance should fail")
	}

	fetched, err := models.GetAcceptanceByShipment(ctx, shipment.ID)
	if err != nil {
		t.Fatalf("GetAcceptanceByShipment: %v", err)
	}
	if fetched.ID != record.ID {
		t.Fatalf("GetAcceptanceByShipment returned record %d, want %d", fetched.ID, record.ID)
	}
	if _, err := models.GetAcceptanceByShipment(ctx, shipment.ID+9999); err != utils.ErrorRecordNotFound {
		t.Fatalf("missing acceptance should be ErrorRecordNotFound, got %v", err)
	}

	riceItem := record.Items[0]
	oilItem := record.Items[1]
	chiliItem := record.Items[2]

	// 2) Reconcile a single line.
	record, err = models.UpdateAcceptanceItemQuantities(ctx, record.ID, riceItem.ID, &models.NewItemQuantities{
		AcceptedQty: decimal.NewFromInt(10),
		Version:     1,
	})
	if err != nil {
		t.Fatalf("UpdateAcceptanceItemQuantities: %v", err)
	}
	if record.Version != 2 {
		t.Fatalf("version after item update = %d, want 2", record.Version)
	}

	// Stale token loses.
	_, err = models.UpdateAcceptanceItemQuantities(ctx, record.ID, riceItem.ID, &models.NewItemQuantities{
		AcceptedQty: decimal.NewFromInt(10),
		Version:     1,
	})
	if err != models.ErrorStaleVersion {
		t.Fatalf("stale update = %v, want ErrorStaleVersion", err)
	}

	// Out-of-range fails before any write.
	_, err = models.UpdateAcceptanceItemQuantities(ctx, record.ID, oilItem.ID, &models.NewItemQuantities{
		AcceptedQty: decimal.NewFromInt(4),
		RejectedQty: decimal.NewFromInt(4),
		Version:     2,
	})
	if err != models.ErrorQuantityOutOfRange {
		t.Fatalf("over-delivered update = %v, want ErrorQuantityOutOfRange", err)
	}

	// 3) Finalize: acceptor required.
	saveInput := &models.AcceptanceInput{
		Version: 2,
		Items: []*models.AcceptanceItemInput{
			{ID: riceItem.ID, AcceptedQty: decimal.NewFromInt(10)},
			{ID: oilItem.ID, AcceptedQty: decimal.NewFromInt(2), RejectedQty: decimal.NewFromInt(3), RejectionReason: "leaking containers"},
			{ID: chiliItem.ID, AcceptedQty: decimal.NewFromInt(8)},
		},
	}
	if _, err := models.SaveAcceptance(ctx, record.ID, saveInput); err != models.ErrorMissingAcceptor {
		t.Fatalf("save without acceptor = %v, want ErrorMissingAcceptor", err)
	}

	saveInput.AcceptorName = "Daw Mya Thida"
	saveInput.AcceptorDesignation = "Store Supervisor"
	record, err = models.SaveAcceptance(ctx, record.ID, saveInput)
	if err != nil {
		t.Fatalf("SaveAcceptance: %v", err)
	}
	if record.CurrentStatus != models.AcceptanceStatusPartiallyAccepted {
		t.Fatalf("finalized status = %q, want Partially Accepted", record.CurrentStatus)
	}
	if record.Version != 3 {
		t.Fatalf("version after save = %d, want 3", record.Version)
	}

	// 4) Rejection case seeded for the rejected line only.
	rejectionCase, err := models.GetRejectionCaseByAcceptance(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetRejectionCaseByAcceptance: %v", err)
	}
	if rejectionCase.CurrentStatus != models.RejectionCaseStatusOpen {
		t.Fatalf("fresh case status = %q, want Open", rejectionCase.CurrentStatus)
	}
	if len(rejectionCase.Dispositions) != 1 {
		t.Fatalf("expected 1 disposition, got %d", len(rejectionCase.Dispositions))
	}
	disposition := rejectionCase.Dispositions[0]
	if disposition.AcceptanceItemId != oilItem.ID {
		t.Fatalf("disposition references item %d, want %d", disposition.AcceptanceItemId, oilItem.ID)
	}
	if !disposition.RejectedQty.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("disposition snapshot qty = %s, want 3", disposition.RejectedQty)
	}
	if disposition.ReturnStatus != models.ReturnStatusPending {
		t.Fatalf("seeded disposition status = %q, want Pending", disposition.ReturnStatus)
	}

	// 5) Resolve the disposition.
	rejectionCase, err = models.UpdateDispositions(ctx, rejectionCase.ID, &models.UpdateDispositionsInput{
		ResolutionNotes: "written off after vendor inspection",
		Version:         1,
		Items: []*models.DispositionInput{
			{
				ID:                disposition.ID,
				ReturnStatus:      models.ReturnStatusNonReturnable,
				InventoryLocation: "QA-HOLD-1",
				CostImpact:        decimal.NewFromInt(93000),
			},
		},
	})
	if err != nil {
		t.Fatalf("UpdateDispositions: %v", err)
	}
	if rejectionCase.CurrentStatus != models.RejectionCaseStatusResolved {
		t.Fatalf("case status = %q, want Resolved", rejectionCase.CurrentStatus)
	}
	if !rejectionCase.TotalCostImpact.Equal(decimal.NewFromInt(93000)) {
		t.Fatalf("total cost impact = %s, want 93000", rejectionCase.TotalCostImpact)
	}

	// Stale case token loses too.
	_, err = models.UpdateDispositions(ctx, rejectionCase.ID, &models.UpdateDispositionsInput{
		Version: 1,
	})
	if err != models.ErrorStaleVersion {
		t.Fatalf("stale disposition update = %v, want ErrorStaleVersion", err)
	}

	// 6) Re-saving the acceptance must not reset resolved dispositions, and a
	// line whose reconciliation is still open (accepted + rejected below the
	// delivered quantity) stays Pending and seeds nothing.
	record, err = models.SaveAcceptance(ctx, record.ID, &models.AcceptanceInput{
		AcceptorName: "Daw Mya Thida",
		Version:      3,
		Items: []*models.AcceptanceItemInput{
			{ID: oilItem.ID, AcceptedQty: decimal.NewFromInt(2), RejectedQty: decimal.NewFromInt(3), RejectionReason: "leaking containers"},
			{ID: chiliItem.ID, RejectedQty: decimal.NewFromInt(2), RejectionReason: "under inspection"},
		},
	})
	if err != nil {
		t.Fatalf("re-SaveAcceptance: %v", err)
	}
	chili := findAcceptanceItem(t, record, chiliItem.ID)
	if chili.ItemStatus != models.AcceptanceStatusPending {
		t.Fatalf("half-reconciled line status = %q, want Pending", chili.ItemStatus)
	}
	rejectionCase, err = models.GetRejectionCaseByAcceptance(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetRejectionCaseByAcceptance after re-save: %v", err)
	}
	if len(rejectionCase.Dispositions) != 1 {
		t.Fatalf("re-save must not duplicate dispositions or seed pending lines, got %d", len(rejectionCase.Dispositions))
	}
	if rejectionCase.Dispositions[0].ReturnStatus != models.ReturnStatusNonReturnable {
		t.Fatalf("re-save reset disposition status to %q", rejectionCase.Dispositions[0].ReturnStatus)
	}

	// 7) Vendor contact.
	if _, err := models.ContactVendor(ctx, rejectionCase.ID, &models.NewCommunicationEntry{
		Method:  models.CommunicationMethodEmail,
		Message: "   ",
	}); err != models.ErrorEmptyMessage {
		t.Fatalf("blank message = %v, want ErrorEmptyMessage", err)
	}

	entry, err := models.ContactVendor(ctx, rejectionCase.ID, &models.NewCommunicationEntry{
		Method:  models.CommunicationMethodEmail,
		Message: "3 drums of peanut oil arrived leaking, please advise",
	})
	if err != nil {
		t.Fatalf("ContactVendor: %v", err)
	}
	if entry.DeliveryStatus != models.CommunicationDeliveryStatusSent {
		t.Fatalf("new entry status = %q, want Sent", entry.DeliveryStatus)
	}

	rejectionCase, err = models.GetRejectionCase(ctx, rejectionCase.ID)
	if err != nil {
		t.Fatalf("GetRejectionCase: %v", err)
	}
	if rejectionCase.VendorContactedDate == nil {
		t.Fatalf("vendor_contacted_date not set after contact")
	}

	entries, err := models.GetCommunicationEntries(ctx, rejectionCase.ID)
	if err != nil {
		t.Fatalf("GetCommunicationEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 communication entry, got %d", len(entries))
	}

	// Status callback moves only the delivery status.
	updated, err := models.UpdateCommunicationDeliveryStatus(ctx, businessID, entry.ID, models.CommunicationDeliveryStatusRead)
	if err != nil {
		t.Fatalf("UpdateCommunicationDeliveryStatus: %v", err)
	}
	if updated.DeliveryStatus != models.CommunicationDeliveryStatusRead {
		t.Fatalf("callback status = %q, want Read", updated.DeliveryStatus)
	}
	if updated.Message != entry.Message {
		t.Fatalf("callback must not edit content")
	}

	// 8) A failed channel-status transition must leave a durable FAILED mark
	// even though the work itself did not apply.
	statusErr := workflow.ProcessChannelStatus(ctx, config.GetLogger(), workflow.ChannelStatusMessage{
		BusinessId:           businessID,
		CommunicationEntryId: entry.ID + 9999,
		DeliveryStatus:       "Read",
		EventDateTime:        time.Now().UTC(),
	}, "itest-status-missing-entry")
	if statusErr == nil {
		t.Fatalf("transition for a missing entry should fail")
	}
	var idemKey models.IdempotencyKey
	err = db.WithContext(ctx).
		Where("business_id = ? AND handler_name = ? AND message_id = ?", businessID, "ChannelStatus", "itest-status-missing-entry").
		First(&idemKey).Error
	if err != nil {
		t.Fatalf("idempotency key not persisted after failed transition: %v", err)
	}
	if idemKey.Status != models.IdempotencyStatusFailed {
		t.Fatalf("idempotency status = %q, want FAILED", idemKey.Status)
	}
	if idemKey.LastError == nil || *idemKey.LastError == "" {
		t.Fatalf("failed transition should record last_error")
	}

	// 9) Outbox rows queued inside the same transactions.
	var outboxCount int64
	if err := db.WithContext(ctx).Model(&models.PubSubMessageRecord{}).
		Where("business_id = ? AND publish_status = ?", businessID, models.OutboxPublishStatusPending).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox rows: %v", err)
	}
	if outboxCount == 0 {
		t.Fatalf("expected queued outbox messages, got none")
	}
}

func findAcceptanceItem(t *testing.T, record *models.AcceptanceRecord, itemID int) *models.AcceptanceItem {
	t.Helper()
	for _, item := range record.Items {
		if item.ID == itemID {
			return item
		}
	}
	t.Fatalf("acceptance item %d not found on record %d", itemID, record.ID)
	return nil
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("procurement-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("procurement-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=procurement_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
