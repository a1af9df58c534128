package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/models"
	"github.com/gasbygas/dispatch_backend/utils"
	"github.com/gasbygas/dispatch_backend/workflow"
)

// End-to-end run of the request -> schedule -> token -> dispatch ->
// receipt -> claim lifecycle against real MySQL + Redis. The outlet
// starts at 100, receives 50, hands over 10, ends at 140.
func TestRequestLifecycle_EndToEnd(t *testing.T) {
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
	t.Setenv("DB_NAME", "dispatch_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetRoleInContext(ctx, utils.RoleHeadOffice)

	// The depot pool backs every dispatch.
	depot, err := models.CreditHeadOfficeStock(ctx, 1000)
	if err != nil {
		t.Fatalf("CreditHeadOfficeStock: %v", err)
	}
	if depot.Quantity != 1000 {
		t.Fatalf("depot stock = %d, want 1000", depot.Quantity)
	}

	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:            "Outlet A",
		Location:        "Galle",
		Mobile:          "0771234567",
		OpeningQuantity: 100,
	})
	if err != nil {
		t.Fatalf("CreateOutlet: %v", err)
	}

	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:     "Customer One",
		OutletId: outlet.ID,
		Email:    "customer.one@example.com",
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	// A schedule date inside the lead window is rejected with no writes.
	_, _, err = models.CreateStockRequest(ctx, &models.NewStockRequest{
		OutletId:     outlet.ID,
		Quantity:     50,
		ScheduleDate: time.Now().AddDate(0, 0, 4),
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error for 4-day lead, got %v", err)
	}
	requests, err := models.ListRequests(ctx, &outlet.ID, nil)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("rejected request must leave no rows; got %d", len(requests))
	}

	request, schedule, err := models.CreateStockRequest(ctx, &models.NewStockRequest{
		OutletId:     outlet.ID,
		Quantity:     50,
		ScheduleDate: time.Now().AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatalf("CreateStockRequest: %v", err)
	}
	if schedule.RequestId != request.ID {
		t.Fatalf("schedule.RequestId = %d, want %d", schedule.RequestId, request.ID)
	}

	// Reschedule while pending fans out to the outlet.
	if err := workflow.EditScheduleDate(ctx, request.ID, time.Now().AddDate(0, 0, 12)); err != nil {
		t.Fatalf("EditScheduleDate: %v", err)
	}

	token, err := models.IssueToken(ctx, &models.NewToken{
		ScheduleId: schedule.ID,
		CustomerId: customer.ID,
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if err := workflow.DispatchRequest(ctx, request.ID, ""); err != nil {
		t.Fatalf("DispatchRequest: %v", err)
	}

	// Dispatch drew the depot pool down by the request quantity.
	depot, err = models.GetStockByOutlet(ctx, models.HeadOfficeOutletId)
	if err != nil {
		t.Fatalf("GetStockByOutlet(depot): %v", err)
	}
	if depot.Quantity != 950 {
		t.Fatalf("depot stock after dispatch = %d, want 950", depot.Quantity)
	}

	// Re-dispatch is a typed transition error, never a second fan-out.
	err = workflow.DispatchRequest(ctx, request.ID, "")
	if !utils.IsTransitionError(err) {
		t.Fatalf("expected transition error on re-dispatch, got %v", err)
	}

	// Schedule is locked once dispatched.
	err = workflow.EditScheduleDate(ctx, request.ID, time.Now().AddDate(0, 0, 20))
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error editing dispatched request, got %v", err)
	}

	// Exactly one notification to the token holder and one to the
	// outlet carry the dispatch message.
	db := config.GetDB()
	var customerDispatchCount, outletDispatchCount int64
	if err := db.Model(&models.Notification{}).
		Where("receiver = ? AND message LIKE ?", models.CustomerAddress(customer.ID), "%dispatched%").
		Count(&customerDispatchCount).Error; err != nil {
		t.Fatalf("count customer notifications: %v", err)
	}
	if err := db.Model(&models.Notification{}).
		Where("receiver = ? AND message LIKE ?", models.OutletAddress(outlet.ID), "%dispatched%").
		Count(&outletDispatchCount).Error; err != nil {
		t.Fatalf("count outlet notifications: %v", err)
	}
	if customerDispatchCount != 1 || outletDispatchCount != 1 {
		t.Fatalf("dispatch fan-out: customer=%d outlet=%d, want 1 and 1", customerDispatchCount, outletDispatchCount)
	}

	// An email intent was queued for the token holder.
	var outboxCount int64
	if err := db.Model(&models.EmailOutboxRecord{}).
		Where("recipient = ?", customer.Email).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount == 0 {
		t.Fatal("dispatch fan-out queued no email intents")
	}

	if err := workflow.ConfirmReceived(ctx, request.ID, ""); err != nil {
		t.Fatalf("ConfirmReceived: %v", err)
	}
	stock, err := models.GetStockByOutlet(ctx, outlet.ID)
	if err != nil {
		t.Fatalf("GetStockByOutlet: %v", err)
	}
	if stock.Quantity != 150 {
		t.Fatalf("stock after receipt = %d, want 150", stock.Quantity)
	}

	// A second receipt confirmation is guarded; no double credit.
	err = workflow.ConfirmReceived(ctx, request.ID, "")
	if !utils.IsTransitionError(err) {
		t.Fatalf("expected transition error on second receipt, got %v", err)
	}
	stock, err = models.GetStockByOutlet(ctx, outlet.ID)
	if err != nil {
		t.Fatalf("GetStockByOutlet: %v", err)
	}
	if stock.Quantity != 150 {
		t.Fatalf("stock after guarded second receipt = %d, want 150", stock.Quantity)
	}

	// Reallocation to a customer that does not resolve changes nothing.
	err = workflow.ReallocateToken(ctx, token.ID, 999999)
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected record-not-found on reallocation to unknown customer, got %v", err)
	}
	unmoved, err := models.GetToken(ctx, token.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if unmoved.CustomerId != customer.ID {
		t.Fatalf("failed reallocation moved the token: customer_id = %d, want %d", unmoved.CustomerId, customer.ID)
	}

	// First handover call previews without committing.
	preview, err := workflow.HandoverToken(ctx, token.ID, false)
	if err != nil {
		t.Fatalf("HandoverToken(preview): %v", err)
	}
	if preview.Customer.ID != customer.ID || preview.Outlet.ID != outlet.ID {
		t.Fatalf("preview mismatch: customer=%d outlet=%d", preview.Customer.ID, preview.Outlet.ID)
	}
	unchanged, err := models.GetToken(ctx, token.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if unchanged.Status != models.TokenStatusUnclaimed {
		t.Fatalf("preview must not commit; token status = %s", unchanged.Status)
	}

	if _, err := workflow.HandoverToken(ctx, token.ID, true); err != nil {
		t.Fatalf("HandoverToken(confirm): %v", err)
	}
	claimed, err := models.GetToken(ctx, token.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if claimed.Status != models.TokenStatusClaimed {
		t.Fatalf("token status = %s, want Claimed", claimed.Status)
	}
	if claimed.PaymentAndEmpty == nil || !*claimed.PaymentAndEmpty {
		t.Fatal("paymentAndEmpty not set on handover")
	}

	stock, err = models.GetStockByOutlet(ctx, outlet.ID)
	if err != nil {
		t.Fatalf("GetStockByOutlet: %v", err)
	}
	if stock.Quantity != 140 {
		t.Fatalf("final stock = %d, want 140 (100 + 50 - 10)", stock.Quantity)
	}

	// Claimed is terminal.
	_, err = workflow.HandoverToken(ctx, token.ID, true)
	if !utils.IsTransitionError(err) {
		t.Fatalf("expected transition error on double handover, got %v", err)
	}

	// Head office can refuse a pending order outright. The row stays on
	// file in a terminal denied state, the outlet is told, nothing moves.
	denied, deniedSchedule, err := models.CreateStockRequest(ctx, &models.NewStockRequest{
		OutletId:     outlet.ID,
		Quantity:     30,
		ScheduleDate: time.Now().AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("CreateStockRequest: %v", err)
	}
	if err := workflow.DenyRequest(ctx, denied.ID, ""); err != nil {
		t.Fatalf("DenyRequest: %v", err)
	}
	refused, err := models.GetRequest(ctx, denied.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if refused.Status != models.RequestStatusDenied {
		t.Fatalf("request status after denial = %s, want denied", refused.Status)
	}

	var deniedNoticeCount int64
	if err := db.Model(&models.Notification{}).
		Where("receiver = ? AND message LIKE ?", models.OutletAddress(outlet.ID), "%denied%").
		Count(&deniedNoticeCount).Error; err != nil {
		t.Fatalf("count denial notifications: %v", err)
	}
	if deniedNoticeCount != 1 {
		t.Fatalf("denial fan-out: outlet notices = %d, want 1", deniedNoticeCount)
	}

	// Denied is terminal: no re-denial, no dispatch, no tokens.
	err = workflow.DenyRequest(ctx, denied.ID, "")
	if !utils.IsTransitionError(err) {
		t.Fatalf("expected transition error on second denial, got %v", err)
	}
	err = workflow.DispatchRequest(ctx, denied.ID, "")
	if !utils.IsTransitionError(err) {
		t.Fatalf("expected transition error dispatching a denied request, got %v", err)
	}
	_, err = models.IssueToken(ctx, &models.NewToken{
		ScheduleId: deniedSchedule.ID,
		CustomerId: customer.ID,
		Quantity:   5,
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error issuing a token on a denied request, got %v", err)
	}

	// Denial moved no stock anywhere.
	depot, err = models.GetStockByOutlet(ctx, models.HeadOfficeOutletId)
	if err != nil {
		t.Fatalf("GetStockByOutlet(depot): %v", err)
	}
	if depot.Quantity != 950 {
		t.Fatalf("depot stock after denial = %d, want 950", depot.Quantity)
	}
}

// A claim bigger than the outlet's balance is rejected and stock is
// left untouched.
func TestHandover_InsufficientStock(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "dispatch_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	if _, err := models.CreditHeadOfficeStock(ctx, 100); err != nil {
		t.Fatalf("CreditHeadOfficeStock: %v", err)
	}

	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{
		Name:            "Outlet B",
		OpeningQuantity: 5,
	})
	if err != nil {
		t.Fatalf("CreateOutlet: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:     "Customer Two",
		OutletId: outlet.ID,
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	request, schedule, err := models.CreateStockRequest(ctx, &models.NewStockRequest{
		OutletId:     outlet.ID,
		Quantity:     20,
		ScheduleDate: time.Now().AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatalf("CreateStockRequest: %v", err)
	}
	token, err := models.IssueToken(ctx, &models.NewToken{
		ScheduleId: schedule.ID,
		CustomerId: customer.ID,
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if err := workflow.DispatchRequest(ctx, request.ID, ""); err != nil {
		t.Fatalf("DispatchRequest: %v", err)
	}
	// Receipt never happens; the outlet only has its opening 5.

	_, err = workflow.HandoverToken(ctx, token.ID, true)
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("expected insufficient-stock error, got %v", err)
	}

	stock, err := models.GetStockByOutlet(ctx, outlet.ID)
	if err != nil {
		t.Fatalf("GetStockByOutlet: %v", err)
	}
	if stock.Quantity != 5 {
		t.Fatalf("stock changed on failed handover: %d, want 5", stock.Quantity)
	}
	unchanged, err := models.GetToken(ctx, token.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if unchanged.Status != models.TokenStatusUnclaimed {
		t.Fatalf("token must stay Unclaimed on failed handover; got %s", unchanged.Status)
	}

	// With the outlet's stock row gone entirely, the claim reports the
	// missing record and still leaves the token untouched.
	db := config.GetDB()
	if err := db.Where("outlet_id = ?", outlet.ID).Delete(&models.Stock{}).Error; err != nil {
		t.Fatalf("delete stock row: %v", err)
	}
	_, err = workflow.HandoverToken(ctx, token.ID, true)
	if !errors.Is(err, utils.ErrorStockNotFound) {
		t.Fatalf("expected stock-not-found error, got %v", err)
	}
	unchanged, err = models.GetToken(ctx, token.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if unchanged.Status != models.TokenStatusUnclaimed {
		t.Fatalf("token must stay Unclaimed when the stock row is missing; got %s", unchanged.Status)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("dispatch-test-redis-%d", time.Now().UnixNano())
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
	name := fmt.Sprintf("dispatch-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=dispatch_test",
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
